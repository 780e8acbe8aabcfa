package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type myApp struct {
	done chan struct{}

	runError         bool
	usageErrorReturn bool
}

func (a *myApp) Run() error {
	<-a.done
	if a.runError {
		return errors.New("run error")
	}
	return nil
}

func (a myApp) UsageError() bool {
	return a.usageErrorReturn
}

func (a *myApp) SetContext(ctx context.Context) {}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		runError         bool
		usageErrorReturn bool

		wantReturnCode int
	}{
		"Run and exit successfully":                          {},
		"Run and exit with usage error":                      {runError: true, usageErrorReturn: true, wantReturnCode: 2},
		"Run and exit with error but not a usage error code": {runError: true, wantReturnCode: 1},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := myApp{
				done:             make(chan struct{}),
				runError:         tc.runError,
				usageErrorReturn: tc.usageErrorReturn,
			}
			close(a.done)

			rc := run(context.Background(), &a)
			require.Equal(t, tc.wantReturnCode, rc, "run should return the expected exit code")
		})
	}
}
