package grpcclient

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

// LoadMethod parses protoFile and returns the descriptor of service/method.
// The service may be given fully qualified or by its short name.
func LoadMethod(protoFile, service, method string) (*desc.MethodDescriptor, error) {
	protoPath := strings.TrimSpace(protoFile)
	if protoPath == "" {
		return nil, fmt.Errorf("proto file is required")
	}
	parser := protoparse.Parser{
		ImportPaths: []string{filepath.Dir(protoPath)},
	}
	files, err := parser.ParseFiles(filepath.Base(protoPath))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", protoPath, err)
	}
	serviceName := strings.TrimSpace(service)
	methodName := strings.TrimSpace(method)
	for _, file := range files {
		for _, svc := range file.GetServices() {
			if matchesServiceName(svc, serviceName) {
				if m := svc.FindMethodByName(methodName); m != nil {
					return m, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("method %s not found in service %s", methodName, serviceName)
}

func matchesServiceName(svc *desc.ServiceDescriptor, target string) bool {
	if target == "" {
		return false
	}
	if svc.GetFullyQualifiedName() == target {
		return true
	}
	return svc.GetName() == target || strings.HasSuffix(target, "."+svc.GetName())
}

// NewRequest builds the method's input message from a JSON payload. An empty
// payload yields the zero message.
func NewRequest(method *desc.MethodDescriptor, payload string) (proto.Message, error) {
	msg := dynamic.NewMessage(method.GetInputType())
	body := strings.TrimSpace(payload)
	if body == "" {
		body = "{}"
	}
	if err := msg.UnmarshalJSON([]byte(body)); err != nil {
		return nil, fmt.Errorf("request payload: %w", err)
	}
	return protoadapt.MessageV2Of(msg), nil
}

// NewResponse returns an empty output message for method.
func NewResponse(method *desc.MethodDescriptor) proto.Message {
	return protoadapt.MessageV2Of(dynamic.NewMessage(method.GetOutputType()))
}
