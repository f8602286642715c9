// SPDX-License-Identifier: MIT

// Package sqlexec applies a directory tree of *.sql* scripts to a relational
// database in natural order, under one of three transaction policies, and
// records what happened to every file.
//
// It is not a migration framework: there is no version table and no
// dependency graph between scripts. Each run scans, sorts, executes and
// reports, and keeps no state afterwards.
//
// # Quick start
//
//	cfg := sqlexec.DefaultConfig
//	cfg.Mode = "per-file"
//	cfg.ScriptDir = "./sql"
//
//	r := &sqlexec.Runner{
//	    Mode:      sqlexec.PerFile,
//	    Root:      cfg.ScriptDir,
//	    Connector: &sqlexec.Connector{Dial: cfg.Dialer()},
//	    Reporter:  &sqlexec.ReportWriter{Dir: "./logs/run"},
//	}
//	result, err := r.Run(context.Background())
//
// # Ordering
//
// Scripts are found recursively (symbolic links are followed) and sorted by
// their path relative to the root, comparing digit runs by value:
//
//	1_a.sql  2_b.sql  10_c.sql  sub/1_x.sql
//
// Paths that end in .sql but are not readable regular files (broken links,
// directories, devices, permission failures) are collected as anomalies.
//
// # Transaction modes
//
//   - per-file: commit after each script. A failing script is rolled back
//     and the run continues.
//   - per-file-until-error: commit after each script. The first failure
//     halts the run and the remaining scripts are left unprocessed.
//   - all-or-nothing: one transaction for every script, committed only if
//     all of them (and the final commit) succeed.
//
// Scan anomalies halt the two stricter modes before any script runs.
//
// # Drivers
//
// The connection is a single database/sql connection with autocommit
// disabled. Supported driver names are "pgx" (the default), "postgres",
// "sqlite3" and "sqlite". Database errors keep their status code (SQLSTATE for
// PostgreSQL, the extended result code for SQLite) and message.
//
// # Outcome
//
// Every discovered script ends in exactly one of the empty, committed,
// errored or unprocessed listings; anomalies are listed on their own. In a
// failed all-or-nothing run the committed listing is reported as
// "executable_files", since nothing was persisted.
//
// The command in cmd/sqlexec wraps all of this with configuration loading,
// logging and report files.
package sqlexec
