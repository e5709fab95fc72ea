package grpcsource

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	fetch "github.com/TimothyKlim/fetch"
)

// Source resolves string keys to record messages over a Get/BatchGet
// service. It implements fetch.DataSource[string, protoreflect.Message]; the
// stable source name doubles as the cache namespace, so distinct services
// need distinct names.
type Source struct {
	name      string
	schema    *Schema
	transport Transport
}

// NewSource binds a schema to a transport under a stable source name.
func NewSource(name string, schema *Schema, transport Transport) *Source {
	return &Source{name: name, schema: schema, transport: transport}
}

var _ fetch.DataSource[string, protoreflect.Message] = (*Source)(nil)

// Name implements fetch.DataSource.
func (s *Source) Name() string { return s.name }

// FetchOne implements fetch.DataSource. A NotFound status or an unset
// record field reports an absent identity.
func (s *Source) FetchOne(ctx context.Context, key string) fetch.Query[fetch.Option[protoreflect.Message]] {
	return fetch.Later[fetch.Option[protoreflect.Message]]{Thunk: func() (fetch.Option[protoreflect.Message], error) {
		req := dynamicpb.NewMessage(s.schema.getInput)
		req.Set(s.schema.getKey, protoreflect.ValueOfString(key))
		resp, err := s.transport.Call(ctx, s.schema.get, req)
		if status.Code(err) == codes.NotFound {
			return fetch.None[protoreflect.Message](), nil
		}
		if err != nil {
			return fetch.None[protoreflect.Message](), err
		}
		if !resp.Has(s.schema.getRecord) {
			return fetch.None[protoreflect.Message](), nil
		}
		return fetch.Some(resp.Get(s.schema.getRecord).Message()), nil
	}}
}

// FetchMany implements fetch.DataSource. Response records are matched to
// requested keys through the schema's key field; records for keys that were
// not requested are dropped, and requested keys without a record are left
// out of the map for the engine to report.
func (s *Source) FetchMany(ctx context.Context, keys []string) fetch.Query[map[string]protoreflect.Message] {
	return fetch.Later[map[string]protoreflect.Message]{Thunk: func() (map[string]protoreflect.Message, error) {
		req := dynamicpb.NewMessage(s.schema.batchGetInput)
		list := req.Mutable(s.schema.batchGetKeys).List()
		for _, key := range keys {
			list.Append(protoreflect.ValueOfString(key))
		}
		resp, err := s.transport.Call(ctx, s.schema.batchGet, req)
		if err != nil {
			return nil, err
		}
		requested := make(map[string]bool, len(keys))
		for _, key := range keys {
			requested[key] = true
		}
		records := resp.Get(s.schema.batchGetRecords).List()
		out := make(map[string]protoreflect.Message, records.Len())
		for i := 0; i < records.Len(); i++ {
			rec := records.Get(i).Message()
			key := rec.Get(s.schema.recordKey).String()
			if !requested[key] {
				continue
			}
			if _, dup := out[key]; dup {
				return nil, fmt.Errorf("grpcsource: duplicate record for key %q", key)
			}
			out[key] = rec
		}
		return out, nil
	}}
}
