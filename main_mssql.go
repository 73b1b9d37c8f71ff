//go:build mssql || all_adapters

package main

import _ "github.com/ekaya-inc/oml2view/pkg/adapters/datasource/mssql"
