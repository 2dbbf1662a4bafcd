package grpc

import (
	"fmt"

	pb "github.com/dmitrijs2005/openblind/internal/proto"
	"github.com/goccy/go-json"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified EncryptionAdmin name, as used by
// the health service and the auth interceptor.
var ServiceName = pb.EncryptionAdmin_ServiceDesc.ServiceName

// toStruct converts a job result to the Struct carried on the wire. The
// field names are the result's JSON tags.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into dst, the reverse of toStruct.
func fromStruct(s *structpb.Struct, dst any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode admin response: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode admin response: %w", err)
	}
	return nil
}
