package idb

import (
	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/looplab/fsm"
)

const (
	sUnconfigured = "unconfigured"
	sConfiguring  = "configuring"
	sReady        = "ready"
	sFailed       = "failed"
	sClosed       = "closed"
)

const (
	eConfigure = "eConfigure"
	eOpenCmd   = "eOpenCmd"
	eOpened    = "eOpened"
	eError     = "eError"
	eClosed    = "eClosed"
)

func (a *Adapter) initFSM() *fsm.FSM {
	return fsm.NewFSM(
		sUnconfigured,
		fsm.Events{
			{Name: eConfigure, Src: []string{sUnconfigured, sReady, sFailed, sClosed}, Dst: sConfiguring},
			{Name: eOpenCmd, Src: []string{sFailed, sClosed}, Dst: sConfiguring},
			{Name: eOpened, Src: []string{sConfiguring}, Dst: sReady},
			{Name: eError, Src: []string{sConfiguring, sReady}, Dst: sFailed},
			{Name: eClosed, Src: []string{sConfiguring, sReady, sFailed}, Dst: sClosed},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				logs.LogBuild.Printf("FSM store state Src: %v, state Dst: %v", e.Src, e.Dst)
			},
		},
	)
}
