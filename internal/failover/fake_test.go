package failover

import (
	"bytes"
	"context"
	"io"
	"sync"

	"filegate/pkg/object"
)

// fakeStore is an in-memory backend whose operations can be made to fail.
type fakeStore struct {
	name  string
	trace *[]string
	mu    sync.Mutex

	failEnsure error
	failPut    error
	failMeta   error
	failStat   error
	failGet    error
	// putPartial stores the body before failing Put, like an interrupted upload.
	putPartial bool

	objects map[string]object.Object
	data    map[string][]byte
	deleted []string
}

func newFakeStore(name string, trace *[]string) *fakeStore {
	return &fakeStore{
		name:    name,
		trace:   trace,
		objects: map[string]object.Object{},
		data:    map[string][]byte{},
	}
}

func (f *fakeStore) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trace != nil {
		*f.trace = append(*f.trace, f.name+":"+op)
	}
}

func (f *fakeStore) Init(context.Context, any) error { return nil }
func (f *fakeStore) Close(context.Context) error     { return nil }

func (f *fakeStore) EnsureContainer(_ context.Context, _ string) error {
	f.record("ensure")
	return f.failEnsure
}

func (f *fakeStore) Put(_ context.Context, container, key string, r io.Reader, _ int64, contentType string) (object.Object, error) {
	f.record("put")
	body, err := io.ReadAll(r)
	if err != nil {
		return object.Object{}, err
	}
	if f.failPut != nil && !f.putPartial {
		return object.Object{}, f.failPut
	}

	f.mu.Lock()
	obj := object.Object{Container: container, Key: key, Size: int64(len(body)), ContentType: contentType}
	f.objects[container+"|"+key] = obj
	f.data[container+"|"+key] = body
	f.mu.Unlock()

	if f.failPut != nil {
		return object.Object{}, f.failPut
	}
	return obj, nil
}

func (f *fakeStore) SetMeta(_ context.Context, container, key string, meta map[string]string) error {
	f.record("tag")
	if f.failMeta != nil {
		return f.failMeta
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[container+"|"+key]
	if !ok {
		return object.ErrNotFound
	}
	obj.CustomMeta = object.CloneMeta(meta)
	f.objects[container+"|"+key] = obj
	return nil
}

func (f *fakeStore) Get(_ context.Context, container, key string) (object.Object, io.ReadCloser, error) {
	f.record("get")
	if f.failGet != nil {
		return object.Object{}, nil, f.failGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[container+"|"+key]
	if !ok {
		return object.Object{}, nil, object.ErrNotFound
	}
	return obj, io.NopCloser(bytes.NewReader(f.data[container+"|"+key])), nil
}

func (f *fakeStore) Stat(_ context.Context, container, key string) (object.Object, error) {
	f.record("stat")
	if f.failStat != nil {
		return object.Object{}, f.failStat
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[container+"|"+key]
	if !ok {
		return object.Object{}, object.ErrNotFound
	}
	return obj, nil
}

func (f *fakeStore) List(context.Context, string, string) ([]object.Object, error) {
	return nil, nil
}

func (f *fakeStore) Delete(_ context.Context, container, key string) error {
	f.record("delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	if _, ok := f.objects[container+"|"+key]; !ok {
		return object.ErrNotFound
	}
	delete(f.objects, container+"|"+key)
	delete(f.data, container+"|"+key)
	return nil
}

func (f *fakeStore) has(container, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[container+"|"+key]
	return ok
}

var _ object.ObjectStorage = (*fakeStore)(nil)
