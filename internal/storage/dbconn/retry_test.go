// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dbconn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "job-matching/pkg/errors"
)

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{base: 3 * time.Second}
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	assert.Equal(t, 6*time.Second, b.NextBackOff())
	assert.Equal(t, 9*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 3*time.Second, b.NextBackOff())
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://***:***@db:5432/jobs", MaskDSN("postgres://app:p%40ss@db:5432/jobs"))
	assert.Equal(t, "postgres://db/jobs", MaskDSN("postgres://db/jobs"))
	assert.Equal(t, "undefined", MaskDSN(""))
}

func TestPgxConnector_RejectsInvalidDSN(t *testing.T) {
	_, err := PgxConnector{}.Connect(context.Background(), RoleWriter, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidArg)

	_, err = PgxConnector{}.Connect(context.Background(), RoleWriter, "postgres://host:notaport/db")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidArg)
}
