package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type methodType struct {
	method reflect.Method
	name   string
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	rawType     = reflect.TypeOf(json.RawMessage(nil))
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// newService scans rcvr for methods of the form
//
//	func (r *T) Name(ctx context.Context, params json.RawMessage) (any, error)
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	srv := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no methods of the handler form", srv.name)
	}
	return srv, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		// receiver, ctx, params -> result, error
		if mt.NumIn() != 3 || mt.NumOut() != 2 ||
			mt.In(1) != contextType || mt.In(2) != rawType ||
			mt.Out(0) != anyType || mt.Out(1) != errorType {
			continue
		}
		name := strings.ToLower(method.Name)
		s.method[name] = &methodType{method: method, name: name}
	}
}

func (s *service) handlers() map[string]HandlerFunc {
	out := make(map[string]HandlerFunc, len(s.method))
	for name, mt := range s.method {
		mt := mt
		out[name] = func(ctx context.Context, params json.RawMessage) (any, error) {
			return s.call(ctx, mt, params)
		}
	}
	return out
}

func (s *service) call(ctx context.Context, mt *methodType, params json.RawMessage) (any, error) {
	args := [3]reflect.Value{s.rcvr, reflect.ValueOf(ctx), reflect.ValueOf(params)}
	results := mt.method.Func.Call(args[:])
	var err error
	if !results[1].IsNil() {
		err = results[1].Interface().(error)
	}
	return results[0].Interface(), err
}
