// Package grpcsource provides a fetch.DataSource over dynamic protobuf for
// backends exposing the conventional Get/BatchGet RPC pair:
//
//	rpc Get(GetRequest) returns (GetResponse);
//	rpc BatchGet(BatchGetRequest) returns (BatchGetResponse);
//
//	message GetRequest       { string key = 1; }
//	message GetResponse      { <Record> record = 1; }
//	message BatchGetRequest  { repeated string keys = 1; }
//	message BatchGetResponse { repeated <Record> records = 1; }
//
// The record message shape is described by the caller and built into
// descriptors at runtime, so no generated code is required on the client
// side.
package grpcsource

import (
	"fmt"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Field describes one field of the record message.
type Field struct {
	Name     string
	Kind     protoreflect.Kind
	Repeated bool
}

// Schema holds the built descriptors for one Get/BatchGet service.
type Schema struct {
	file protoreflect.FileDescriptor

	get      protoreflect.MethodDescriptor
	batchGet protoreflect.MethodDescriptor

	record    protoreflect.MessageDescriptor
	recordKey protoreflect.FieldDescriptor

	getKey           protoreflect.FieldDescriptor
	getRecord        protoreflect.FieldDescriptor
	batchGetKeys     protoreflect.FieldDescriptor
	batchGetRecords  protoreflect.FieldDescriptor
	getInput         protoreflect.MessageDescriptor
	batchGetInput    protoreflect.MessageDescriptor
}

// NewSchema builds descriptors for service (a fully-qualified name such as
// "catalog.ProductStore") whose record message carries fields. keyField must
// name a string field in fields; BatchGet responses are matched back to
// requested keys through it.
func NewSchema(service, keyField string, fields []Field) (*Schema, error) {
	pkg, svcName, err := splitServiceName(service)
	if err != nil {
		return nil, err
	}
	hasKey := false
	for _, f := range fields {
		if f.Name == keyField {
			if f.Kind != protoreflect.StringKind || f.Repeated {
				return nil, fmt.Errorf("grpcsource: key field %q must be a singular string", keyField)
			}
			hasKey = true
		}
	}
	if !hasKey {
		return nil, fmt.Errorf("grpcsource: key field %q not present in record fields", keyField)
	}

	fb := protobuilder.NewFile(pathFor(pkg, svcName))
	fb.SetPackageName(protoreflect.FullName(pkg))

	record := protobuilder.NewMessage("Record")
	for i, f := range fields {
		field := protobuilder.NewField(protoreflect.Name(f.Name), protobuilder.FieldTypeScalar(f.Kind))
		field.SetNumber(protoreflect.FieldNumber(i + 1))
		if f.Repeated {
			field.SetRepeated()
		}
		record.AddField(field)
	}

	getReq := protobuilder.NewMessage("GetRequest")
	keyF := protobuilder.NewField("key", protobuilder.FieldTypeScalar(protoreflect.StringKind))
	keyF.SetNumber(1)
	getReq.AddField(keyF)

	getResp := protobuilder.NewMessage("GetResponse")
	recF := protobuilder.NewField("record", protobuilder.FieldTypeMessage(record))
	recF.SetNumber(1)
	getResp.AddField(recF)

	batchReq := protobuilder.NewMessage("BatchGetRequest")
	keysF := protobuilder.NewField("keys", protobuilder.FieldTypeScalar(protoreflect.StringKind))
	keysF.SetNumber(1)
	keysF.SetRepeated()
	batchReq.AddField(keysF)

	batchResp := protobuilder.NewMessage("BatchGetResponse")
	recsF := protobuilder.NewField("records", protobuilder.FieldTypeMessage(record))
	recsF.SetNumber(1)
	recsF.SetRepeated()
	batchResp.AddField(recsF)

	svc := protobuilder.NewService(protoreflect.Name(svcName))
	svc.AddMethod(protobuilder.NewMethod("Get",
		protobuilder.RpcTypeMessage(getReq, false),
		protobuilder.RpcTypeMessage(getResp, false)))
	svc.AddMethod(protobuilder.NewMethod("BatchGet",
		protobuilder.RpcTypeMessage(batchReq, false),
		protobuilder.RpcTypeMessage(batchResp, false)))

	fb.AddMessage(record)
	fb.AddMessage(getReq)
	fb.AddMessage(getResp)
	fb.AddMessage(batchReq)
	fb.AddMessage(batchResp)
	fb.AddService(svc)

	fd, err := fb.Build()
	if err != nil {
		return nil, fmt.Errorf("grpcsource: building descriptors: %w", err)
	}

	s := &Schema{file: fd}
	svcDesc := fd.Services().ByName(protoreflect.Name(svcName))
	s.get = svcDesc.Methods().ByName("Get")
	s.batchGet = svcDesc.Methods().ByName("BatchGet")
	s.record = fd.Messages().ByName("Record")
	s.recordKey = s.record.Fields().ByName(protoreflect.Name(keyField))
	s.getInput = s.get.Input()
	s.batchGetInput = s.batchGet.Input()
	s.getKey = s.getInput.Fields().ByName("key")
	s.getRecord = s.get.Output().Fields().ByName("record")
	s.batchGetKeys = s.batchGetInput.Fields().ByName("keys")
	s.batchGetRecords = s.batchGet.Output().Fields().ByName("records")
	return s, nil
}

// Record returns the record message descriptor, for building test fixtures
// and inspecting results.
func (s *Schema) Record() protoreflect.MessageDescriptor { return s.record }

// File returns the built file descriptor.
func (s *Schema) File() protoreflect.FileDescriptor { return s.file }

func splitServiceName(service string) (pkg, name string, err error) {
	full := protoreflect.FullName(service)
	if !full.IsValid() || full.Parent() == "" {
		return "", "", fmt.Errorf("grpcsource: service %q must be fully qualified (pkg.Service)", service)
	}
	return string(full.Parent()), string(full.Name()), nil
}

func pathFor(pkg, svcName string) string {
	return fmt.Sprintf("%s/%s.proto", pkg, svcName)
}
