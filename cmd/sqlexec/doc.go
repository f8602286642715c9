// SPDX-License-Identifier: MIT

// Package main provides sqlexec, a command-line interface for the sqlexec
// library.
//
// # Install
//
//	go install github.com/bcomnes/sqlexec/cmd/sqlexec@latest
//
// # Synopsis
//
//	sqlexec run -t <mode> [options]   Execute every *.sql file under -d.
//	sqlexec list [options]            Print the scripts in execution order.
//	sqlexec new <desc> [options]      Create the next numbered script.
//	sqlexec version                   Print the version.
//
// # Transaction modes
//
//	per-file              Commit after each script. On error roll back that
//	                      script and continue.
//	all-or-nothing        Single transaction. Commit only if ALL scripts
//	                      succeed; any error rolls back everything.
//	per-file-until-error  Commit after each script. Halt on the first error
//	                      (scan, file or database).
//
// # Configuration
//
// Precedence, highest first:
//
//	flags ➜ environment ➜ .env file ➜ sqlexec.toml (or .yaml) ➜ built-in defaults
//
// Environment variables: DB_DRIVER, DB_HOST, DB_PORT, DB_NAME, DB_USER,
// DB_PASS, DB_SSLMODE, DATABASE_URL, SQL_DIR. Variables already set in the
// environment are never overridden by the .env file.
//
// Example sqlexec.toml:
//
//	driver           = "pgx"
//	host             = "db.internal"
//	database         = "app"
//	user             = "deploy"
//	script_dir       = "./sql"
//	connect_attempts = 5
//	connect_delay    = "3s"
//
// # Output
//
// Each invocation creates <log-dir>/<timestamp>/ holding a JSON log of the
// run and, for run, one listing per outcome: committed (or executable)
// files, file anomalies, errors, empty files and unprocessed files.
//
// # Exit status
//
// 0 on success, 1 on any fatal condition: connection exhaustion, scan
// anomalies in a halting mode, a halted run or a failed final commit.
package main
