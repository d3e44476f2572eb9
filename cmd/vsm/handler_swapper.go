package main

import (
	"net/http"
	"sync/atomic"
)

// handlerSwapper lets a SIGHUP reload replace the served handler, e.g. when
// the panel is toggled, without dropping the listener.
type handlerSwapper struct {
	handler atomic.Pointer[http.Handler]
}

func newHandlerSwapper(h http.Handler) *handlerSwapper {
	s := &handlerSwapper{}
	s.Swap(h)
	return s
}

func (s *handlerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

// Swap replaces the underlying handler. In-flight requests finish on the old one.
func (s *handlerSwapper) Swap(h http.Handler) {
	s.handler.Store(&h)
}
