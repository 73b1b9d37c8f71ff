package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"T", "[T]"},
		{"generator_sin", "[generator_sin]"},
		{"odd]name", "[odd]]name]"},
		{"a]]b", "[a]]]]b]"},
		{"has space", "[has space]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, quoteName(tt.input), "quoteName(%q)", tt.input)
	}
}

func TestNamed(t *testing.T) {
	arg := named(3, "a")
	assert.Equal(t, "p3", arg.Name)
	assert.Equal(t, "a", arg.Value)
	assert.Equal(t, "@p3", placeholder(3))
}

func TestMapSQLServerType(t *testing.T) {
	assert.Equal(t, "INTEGER", mapSQLServerType("int"))
	assert.Equal(t, "DOUBLE PRECISION", mapSQLServerType("FLOAT"))
	assert.Equal(t, "VARCHAR", mapSQLServerType("nvarchar"))
	assert.Equal(t, "BYTEA", mapSQLServerType("VARBINARY"))
	assert.Equal(t, "BIGINT", mapSQLServerType("bigint"))
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name     string
		dbType   string
		value    any
		expected any
	}{
		{"varchar bytes", "VARCHAR", []byte("sine"), "sine"},
		{"decimal", "DECIMAL", []byte("12.50"), 12.5},
		{"money", "MONEY", []byte("3.0000"), 3.0},
		{"bad decimal stays text", "NUMERIC", []byte("n/a"), "n/a"},
		{"varbinary untouched", "VARBINARY", []byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{"int untouched", "INT", int64(7), int64(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, convertValue(tt.dbType, tt.value))
		})
	}
}
