package preset

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "distconsole/internal/errors"
	"distconsole/pkg/contracts/domain"
)

const hclPreset = `
dataframe = "bills"

configuration "amount" {
  operation "filter" {
    argument = "amount > 100"
  }
  operation "VAL" {
    argument = "10"
  }
}

configuration "region" {
  operation "expression" {}
}
`

func TestParse_HCL(t *testing.T) {
	p, err := Parse("preset.hcl", []byte(hclPreset))
	require.NoError(t, err)

	assert.Equal(t, "bills", p.Dataframe)
	require.Len(t, p.Set.Configurations, 2)

	amount := p.Set.Configurations[0]
	assert.Equal(t, "amount", amount.Column)
	assert.Equal(t, []domain.OperationKind{domain.OperationKindFilter, domain.OperationKindValue}, amount.Kinds())
	assert.Equal(t, "amount > 100", amount.Operations[0].Argument())
	assert.Equal(t, "10", amount.Operations[1].Argument())
	require.NotNil(t, amount.Operations[1].Value)
	assert.Nil(t, amount.Operations[1].Filter)

	region := p.Set.Configurations[1]
	assert.Equal(t, domain.OperationKindExpression, region.Operations[0].Kind)
	assert.Nil(t, region.Operations[0].Expression, "omitted argument stays unset")
}

func TestParse_HCLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", `configuration "a" {`, "failed to parse HCL file"},
		{"unknown block", `column "a" {}`, "failed to decode HCL file"},
		{"unknown kind", "configuration \"a\" {\n  operation \"sum\" {}\n}\n", "unknown operation kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.hcl", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_HCLUnknownKindIsTyped(t *testing.T) {
	_, err := Parse("bad.hcl", []byte("configuration \"a\" {\n  operation \"sum\" {}\n}\n"))
	assert.True(t, errors.Is(err, apperrors.ErrUnknownOperationKind))
}

func TestParse_YAML(t *testing.T) {
	src := `
dataframe: payments
configurations:
  - column: amount
    operations:
      - kind: Filter
        filter: "amount > 5"
      - kind: EXP
        value: "a + b"
`
	p, err := Parse("preset.yml", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "payments", p.Dataframe)
	ops := p.Set.Configurations[0].Operations
	assert.Equal(t, domain.OperationKindFilter, ops[0].Kind)
	assert.Equal(t, domain.OperationKindExpression, ops[1].Kind)
	assert.Equal(t, "a + b", ops[1].Argument(), "argument moved to the field the kind selects")
	assert.Nil(t, ops[1].Value)
}

func TestParse_YAMLRejectsUnknownFields(t *testing.T) {
	_, err := Parse("preset.yaml", []byte("dataframe: x\nconfigs: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode YAML file")
}

func TestParse_UnsupportedExtension(t *testing.T) {
	_, err := Parse("preset.toml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preset.hcl")
	require.NoError(t, os.WriteFile(path, []byte(hclPreset), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, p.Set.Configurations, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteYAML_ReadsBack(t *testing.T) {
	p, err := Parse("preset.hcl", []byte(hclPreset))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, p))
	assert.Contains(t, buf.String(), "dataframe: bills")

	back, err := Parse("preset.yaml", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, p.Set.Configurations[0].Kinds(), back.Set.Configurations[0].Kinds())
	assert.Equal(t, "amount > 100", back.Set.Configurations[0].Operations[0].Argument())
}
