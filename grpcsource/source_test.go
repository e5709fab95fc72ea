package grpcsource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	fetch "github.com/TimothyKlim/fetch"
)

func productSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema("catalog.ProductStore", "sku", []Field{
		{Name: "sku", Kind: protoreflect.StringKind},
		{Name: "title", Kind: protoreflect.StringKind},
		{Name: "price_cents", Kind: protoreflect.Int64Kind},
	})
	require.NoError(t, err)
	return s
}

func record(s *Schema, sku, title string) *dynamicpb.Message {
	rec := dynamicpb.NewMessage(s.record)
	rec.Set(s.record.Fields().ByName("sku"), protoreflect.ValueOfString(sku))
	rec.Set(s.record.Fields().ByName("title"), protoreflect.ValueOfString(title))
	return rec
}

func getResponse(s *Schema, rec *dynamicpb.Message) protoreflect.Message {
	resp := dynamicpb.NewMessage(s.get.Output())
	if rec != nil {
		resp.Set(s.getRecord, protoreflect.ValueOfMessage(rec))
	}
	return resp
}

func batchResponse(s *Schema, recs ...*dynamicpb.Message) protoreflect.Message {
	resp := dynamicpb.NewMessage(s.batchGet.Output())
	list := resp.Mutable(s.batchGetRecords).List()
	for _, rec := range recs {
		list.Append(protoreflect.ValueOfMessage(rec))
	}
	return resp
}

func TestSchemaValidation(t *testing.T) {
	_, err := NewSchema("NoPackage", "sku", []Field{{Name: "sku", Kind: protoreflect.StringKind}})
	require.Error(t, err)

	_, err = NewSchema("catalog.ProductStore", "sku", []Field{{Name: "title", Kind: protoreflect.StringKind}})
	require.Error(t, err)

	_, err = NewSchema("catalog.ProductStore", "sku", []Field{{Name: "sku", Kind: protoreflect.Int64Kind}})
	require.Error(t, err)
}

func TestSchemaDescriptors(t *testing.T) {
	s := productSchema(t)
	require.Equal(t, protoreflect.FullName("catalog.ProductStore.Get"), s.get.FullName())
	require.Equal(t, protoreflect.FullName("catalog.ProductStore.BatchGet"), s.batchGet.FullName())
	require.NotNil(t, s.Record().Fields().ByName("price_cents"))
}

func TestFetchOneMapsRequestAndResponse(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport(getResponse(s, record(s, "a-1", "widget")))
	src := NewSource("Products", s, tp)

	opt, err := fetch.RunQuery(context.Background(), src.FetchOne(context.Background(), "a-1"))
	require.NoError(t, err)
	rec, ok := opt.Get()
	require.True(t, ok)
	require.Equal(t, "widget", rec.Get(s.record.Fields().ByName("title")).String())

	calls := tp.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "/catalog.ProductStore/Get", calls[0].FullMethod)
	req := calls[0].Request.ProtoReflect()
	require.Equal(t, "a-1", req.Get(s.getKey).String())
}

func TestFetchOneNotFound(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport()
	tp.SeedError(0, status.Error(codes.NotFound, "no such sku"))
	src := NewSource("Products", s, tp)

	opt, err := fetch.RunQuery(context.Background(), src.FetchOne(context.Background(), "nope"))
	require.NoError(t, err)
	require.True(t, opt.IsNone())
}

func TestFetchOneEmptyResponseIsNone(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport(getResponse(s, nil))
	src := NewSource("Products", s, tp)

	opt, err := fetch.RunQuery(context.Background(), src.FetchOne(context.Background(), "a-1"))
	require.NoError(t, err)
	require.True(t, opt.IsNone())
}

func TestFetchOneTransportError(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport()
	boom := status.Error(codes.Unavailable, "down")
	tp.SeedError(0, boom)
	src := NewSource("Products", s, tp)

	_, err := fetch.RunQuery(context.Background(), src.FetchOne(context.Background(), "a-1"))
	require.ErrorIs(t, err, boom)
}

func TestFetchManyMatchesByKey(t *testing.T) {
	s := productSchema(t)
	// Out of order, plus an extra record that was never requested.
	tp := NewMockTransport(batchResponse(s,
		record(s, "b-2", "gadget"),
		record(s, "a-1", "widget"),
		record(s, "z-9", "extra"),
	))
	src := NewSource("Products", s, tp)

	m, err := fetch.RunQuery(context.Background(), src.FetchMany(context.Background(), []string{"a-1", "b-2"}))
	require.NoError(t, err)
	require.Len(t, m, 2)
	require.Equal(t, "widget", m["a-1"].Get(s.record.Fields().ByName("title")).String())
	require.Equal(t, "gadget", m["b-2"].Get(s.record.Fields().ByName("title")).String())

	req := tp.Calls()[0].Request.ProtoReflect()
	keys := req.Get(s.batchGetKeys).List()
	require.Equal(t, 2, keys.Len())
}

func TestFetchManyOmitsMissingKeys(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport(batchResponse(s, record(s, "a-1", "widget")))
	src := NewSource("Products", s, tp)

	m, err := fetch.RunQuery(context.Background(), src.FetchMany(context.Background(), []string{"a-1", "missing"}))
	require.NoError(t, err)
	require.Len(t, m, 1)
	_, ok := m["missing"]
	require.False(t, ok)
}

func TestEngineBatchesThroughBatchGet(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport(batchResponse(s,
		record(s, "a-1", "widget"),
		record(s, "b-2", "gadget"),
		record(s, "c-3", "gizmo"),
	))
	src := NewSource("Products", s, tp)

	fa := fetch.Traverse([]string{"a-1", "b-2", "c-3"}, func(sku string) fetch.Fetch[protoreflect.Message] {
		return fetch.New[string, protoreflect.Message](src, sku)
	})
	env, recs, err := fetch.RunEnv(context.Background(), fa)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Len(t, env.Rounds, 1)
	require.Equal(t, fetch.RoundMany, env.Rounds[0].Kind)

	calls := tp.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "/catalog.ProductStore/BatchGet", calls[0].FullMethod)
}

func TestEngineReportsMissingRecord(t *testing.T) {
	s := productSchema(t)
	tp := NewMockTransport(batchResponse(s, record(s, "a-1", "widget")))
	src := NewSource("Products", s, tp)

	fa := fetch.Traverse([]string{"a-1", "b-2"}, func(sku string) fetch.Fetch[protoreflect.Message] {
		return fetch.New[string, protoreflect.Message](src, sku)
	})
	_, err := fetch.Run(context.Background(), fa)
	var missing *fetch.MissingIdentityError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "Products", missing.Source)
	require.Equal(t, "b-2", missing.Identity)
}
