// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestSCN(t *testing.T) {
	require.False(t, SCNInvalid.IsValid())
	require.True(t, SCNMin.IsValid())
	require.False(t, SCNMin.IsValidAndNotMin())
	require.True(t, SCN(2).IsValidAndNotMin())
	require.True(t, SCNMax.IsValidAndNotMin())

	require.Equal(t, SCN(11), SCN(10).Plus(1))
	require.Equal(t, SCNMax, SCNMax.Plus(1))
	require.Equal(t, SCNMax, (SCNMax - 1).Plus(5))

	require.Equal(t, SCN(3), MinSCN(3, 9))
	require.Equal(t, SCN(9), MaxSCN(3, 9))
}

func TestSCNFormat(t *testing.T) {
	for _, s := range []SCN{SCNInvalid, SCNMin, SCNMax, 12345} {
		parsed, err := ParseSCN(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	require.Equal(t, "scn=15", string(redact.Sprintf("scn=%s", SCN(15)).Redact()))

	_, err := ParseSCN("twelve")
	require.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestErrorMarks(t *testing.T) {
	err := Retryablef("container %d frozen", 7)
	require.True(t, IsRetryable(err))
	require.False(t, errors.Is(err, ErrUnexpected))
	require.Contains(t, err.Error(), "container 7 frozen")

	err = Unexpectedf("count mismatch %d != %d", 1, 2)
	require.True(t, errors.Is(err, ErrUnexpected))
	require.True(t, errors.HasAssertionFailure(err))

	require.True(t, IsControlSignal(errors.Wrap(ErrBeyondRange, "locate")))
	require.True(t, IsControlSignal(ErrEndOfIteration))
	require.False(t, IsControlSignal(StateMismatchf("not frozen")))
}

func TestInMemLogger(t *testing.T) {
	var l InMemLogger
	l.Infof("hello %d", 1)
	l.Errorf("broken\n")
	l.Fatalf("dead")
	require.Equal(t, "hello 1\nerror: broken\nfatal: dead\n", l.String())
	l.Reset()
	require.Equal(t, "", l.String())
}
