package connector

import "github.com/ceyewan/harvest/xerrors"

var (
	ErrClientNil   = xerrors.Wrap(xerrors.ErrUnavailable, "connector: client not connected")
	ErrConnection  = xerrors.Wrap(xerrors.ErrUnavailable, "connector: connection failed")
	ErrConfig      = xerrors.Wrap(xerrors.ErrInvalidInput, "connector: invalid config")
	ErrHealthCheck = xerrors.Wrap(xerrors.ErrUnavailable, "connector: health check failed")
)
