//go:build postgres || all_adapters

package main

import _ "github.com/ekaya-inc/oml2view/pkg/adapters/datasource/postgres"
