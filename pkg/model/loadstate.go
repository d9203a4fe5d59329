package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// LoadStatus is the phase of a load request.
type LoadStatus int

const (
	LoadIdle LoadStatus = iota
	LoadLoading
	LoadLoaded
	LoadError
)

// String implements fmt.Stringer.
func (s LoadStatus) String() string {
	switch s {
	case LoadIdle:
		return "idle"
	case LoadLoading:
		return "loading"
	case LoadLoaded:
		return "loaded"
	case LoadError:
		return "error"
	default:
		return "unknown"
	}
}

// LoadState is the load state of one request direction.
// Err is set only when Status is LoadError.
type LoadState struct {
	Status LoadStatus
	Err    error
}

// Idle returns the initial state.
func Idle() LoadState { return LoadState{Status: LoadIdle} }

// Loading returns the in-flight state.
func Loading() LoadState { return LoadState{Status: LoadLoading} }

// Loaded returns the success state.
func Loaded() LoadState { return LoadState{Status: LoadLoaded} }

// Failed returns the error state carrying err.
func Failed(err error) LoadState { return LoadState{Status: LoadError, Err: err} }

func (s LoadState) IsLoading() bool { return s.Status == LoadLoading }

func (s LoadState) IsError() bool { return s.Status == LoadError }

// MarshalJSON renders the state as {"status":"error","error":"..."}.
func (s LoadState) MarshalJSON() ([]byte, error) {
	out := struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}{Status: s.Status.String()}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the form written by MarshalJSON. The error text is
// kept; its type is not.
func (s *LoadState) UnmarshalJSON(data []byte) error {
	var in struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	status, err := parseLoadStatus(in.Status)
	if err != nil {
		return err
	}
	*s = LoadState{Status: status}
	if in.Error != "" {
		s.Err = errors.New(in.Error)
	}
	return nil
}

func parseLoadStatus(v string) (LoadStatus, error) {
	for _, st := range []LoadStatus{LoadIdle, LoadLoading, LoadLoaded, LoadError} {
		if st.String() == v {
			return st, nil
		}
	}
	return LoadIdle, fmt.Errorf("unknown load status %q", v)
}
