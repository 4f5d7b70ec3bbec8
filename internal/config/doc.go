// Package config provides settings and runtime tuning for relayctl.
//
// # Settings
//
// Operator settings (UUID, tunnel credentials, monitoring server, ...) are
// resolved from three layers, later layers overriding earlier ones:
//
//  1. Built-in defaults
//  2. The settings store, a dotenv file at <FILE_PATH>/.env
//  3. The process environment
//
// An empty value never overrides a lower layer. FILE_PATH itself is read from
// the environment only, since it locates the store. LoadSettings returns an
// immutable Settings snapshot; callers take a fresh snapshot for every
// orchestration run.
//
// The store can be edited with `relayctl config set` or by hand. A Watcher
// polls it so a running service can restart with the new values.
//
// # Runtime tuning
//
// Delays, the resolver retry budget and binary download locations live in a
// separate YAML file with its own layering:
//
//  1. Defaults (GetDefaultRuntime)
//  2. User configuration (~/.config/relayctl/config.yaml)
//  3. Project configuration (./.relayctl/config.yaml)
//
// Durations use Go syntax:
//
//	timing:
//	  cleanupGrace: 90s
//	  stopTimeout: 5s
//	resolver:
//	  warmup: 3s
//	  cooldown: 3s
//	  maxAttempts: 5
//	binaries:
//	  arm:
//	    relay: https://mirror.example/arm/web
//
// An explicit --config path replaces the user and project layers.
package config
