// Package testhelpers provides utilities for testing oml2view components.
package testhelpers

import (
	"fmt"
	"strings"
)

// Dialects understood by OMLFixture.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Names of the tables created by OMLFixture. T holds the two-label scenario,
// T_single the same rows with one label value, and sparse starts with a row
// of NULLs.
const (
	FixtureScenarioTable = "T"
	FixtureSingleLabel   = "T_single"
	FixtureMeasurement   = "generator_sin"
	FixtureEmpty         = "empty_mp"
	FixtureNulls         = "sparse"
	FixtureBlobs         = "blobs"
)

type dialectTypes struct {
	integer, real, text, blob string
	blobValue                 string
}

var fixtureTypes = map[string]dialectTypes{
	DialectSQLite:   {integer: "INTEGER", real: "REAL", text: "TEXT", blob: "BLOB", blobValue: "X'0102'"},
	DialectPostgres: {integer: "BIGINT", real: "DOUBLE PRECISION", text: "TEXT", blob: "BYTEA", blobValue: `'\x0102'::bytea`},
}

// OMLFixture returns the statements that build a small OML2 experiment the
// way the collection server lays it out: one table per measurement point
// with the four oml_* metadata columns, plus _senders and _experiment_metadata.
func OMLFixture(dialect string) []string {
	ty, ok := fixtureTypes[dialect]
	if !ok {
		panic(fmt.Sprintf("testhelpers: unknown dialect %q", dialect))
	}

	r := strings.NewReplacer("{INT}", ty.integer, "{REAL}", ty.real, "{TEXT}", ty.text, "{BLOB}", ty.blob, "{BLOBVAL}", ty.blobValue)

	statements := []string{
		`CREATE TABLE "_senders" (name {TEXT} PRIMARY KEY, id {INT} UNIQUE)`,
		`INSERT INTO "_senders" (name, id) VALUES ('node1', 1), ('node2', 2)`,
		`CREATE TABLE "_experiment_metadata" (key {TEXT} PRIMARY KEY, value {TEXT})`,
		`INSERT INTO "_experiment_metadata" (key, value) VALUES ('start_time', '1700000000'), ('origin', 'fixture')`,

		`CREATE TABLE "T" (x {INT}, y {INT}, g {TEXT})`,
		`INSERT INTO "T" (x, y, g) VALUES (1, 10, 'a'), (2, 20, 'a'), (3, 30, 'b')`,

		`CREATE TABLE "T_single" (x {INT}, y {INT}, g {TEXT})`,
		`INSERT INTO "T_single" (x, y, g) VALUES (1, 10, 'a'), (2, 20, 'a'), (3, 30, 'a')`,

		`CREATE TABLE "generator_sin" (oml_sender_id {INT}, oml_seq {INT}, oml_ts_client {REAL}, oml_ts_server {REAL}, label {TEXT}, channel {TEXT}, value {REAL}, phase {REAL})`,
		`INSERT INTO "generator_sin" VALUES
			(1, 1, 0.5, 0.6, 'sine', 'a', 0.0, 0.0),
			(1, 2, 1.5, 1.6, 'sine', 'b', 0.84, 1.0),
			(2, 1, 0.7, 0.8, 'sine', NULL, 0.5, 0.5),
			(2, 2, 1.7, 1.8, 'sine', 'a', 0.99, 1.5)`,

		`CREATE TABLE "empty_mp" (oml_sender_id {INT}, oml_seq {INT}, oml_ts_client {REAL}, oml_ts_server {REAL}, value {REAL})`,

		`CREATE TABLE "sparse" (a {INT}, b {TEXT}, c {REAL}, d {TEXT})`,
		`INSERT INTO "sparse" (a, b, c, d) VALUES (NULL, 'x', NULL, NULL), (3, NULL, 2.5, NULL)`,

		`CREATE TABLE "blobs" (id {INT}, data {BLOB})`,
		`INSERT INTO "blobs" (id, data) VALUES (1, {BLOBVAL})`,
	}

	for i, s := range statements {
		statements[i] = r.Replace(s)
	}
	return statements
}
