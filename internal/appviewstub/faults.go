package appviewstub

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"skyprefs/pkg/logging"
	"skyprefs/pkg/middleware"
)

// Fault makes calls to one method fail.
type Fault struct {
	Status  int
	Error   string
	Message string
	// Drop closes the connection without a response.
	Drop bool
	// Times is how many calls fail; 0 fails every call until cleared.
	Times int
	// Delay holds the call before answering. A fault with a Delay and no
	// Status or Error only slows the call down.
	Delay time.Duration
}

func (f Fault) latencyOnly() bool {
	return f.Delay > 0 && f.Status == 0 && f.Error == "" && !f.Drop
}

// InjectFault makes calls to nsid fail as described by f.
func (s *Server) InjectFault(nsid string, f Fault) {
	if !f.latencyOnly() {
		if f.Status == 0 {
			f.Status = http.StatusInternalServerError
		}
		if f.Error == "" {
			f.Error = "InternalServerError"
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[nsid] = &f
}

func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]*Fault)
}

// takeFault must be called with s.mu held.
func (s *Server) takeFault(nsid string) *Fault {
	f, ok := s.faults[nsid]
	if !ok {
		return nil
	}
	out := *f
	if f.Times > 0 {
		f.Times--
		if f.Times == 0 {
			delete(s.faults, nsid)
		}
	}
	return &out
}

// serveFault reports whether the call should continue to its handler.
func (s *Server) serveFault(c *gin.Context, f *Fault) bool {
	middleware.GetContextLogger(c, s.logger).WithFields(logging.Fields{
		"status": f.Status,
		"error":  f.Error,
		"drop":   f.Drop,
		"delay":  f.Delay,
	}).Debug("Serving injected fault")

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-c.Request.Context().Done():
			c.Abort()
			return false
		}
	}
	if f.latencyOnly() {
		return true
	}

	if f.Drop {
		conn, _, err := c.Writer.Hijack()
		if err == nil {
			_ = conn.Close()
			c.Abort()
			return false
		}
	}
	middleware.XRPCError(c, f.Status, f.Error, f.Message)
	return false
}
