package mssql

import (
	"database/sql"
	"strconv"
	"strings"
)

// quoteName quotes an identifier the way SQL Server's QUOTENAME() does:
// square brackets with ] escaped as ]].
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// placeholder returns the named parameter a $n placeholder is rewritten to.
func placeholder(n int) string {
	return "@p" + strconv.Itoa(n)
}

// named binds value to the @pn parameter.
func named(n int, value any) sql.NamedArg {
	return sql.Named("p"+strconv.Itoa(n), value)
}

// mapSQLServerType maps SQL Server type names to the names the other
// adapters report, so column types read the same across backends.
func mapSQLServerType(sqlServerType string) string {
	sqlServerType = strings.ToUpper(sqlServerType)

	switch sqlServerType {
	case "INT":
		return "INTEGER"
	case "DECIMAL", "NUMERIC":
		return "NUMERIC"
	case "MONEY", "SMALLMONEY":
		return "MONEY"
	case "FLOAT":
		return "DOUBLE PRECISION"
	case "CHAR", "NCHAR":
		return "CHAR"
	case "VARCHAR", "NVARCHAR":
		return "VARCHAR"
	case "TEXT", "NTEXT":
		return "TEXT"
	case "BINARY", "VARBINARY":
		return "BYTEA"
	case "IMAGE":
		return "BLOB"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMP WITH TIME ZONE"
	case "BIT":
		return "BOOLEAN"
	case "UNIQUEIDENTIFIER":
		return "UUID"
	default:
		return sqlServerType
	}
}

// isStringType returns true if the type is a string type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}

// isDecimalType returns true for exact numeric types, which the driver
// returns as their decimal text.
func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

// convertValue turns driver-specific encodings into plain Go values:
// character data read as []byte becomes string, decimals become float64.
func convertValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	switch {
	case isStringType(dbType):
		return string(b)
	case isDecimalType(dbType):
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return string(b)
		}
		return f
	default:
		return v
	}
}
