package main

import "time"

// Flag structs decouple cobra from command logic for testing.

// GlobalFlags selects the configuration file.
type GlobalFlags struct {
	ConfigDir  string
	ConfigFile string
	Profile    string
}

type RunFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

type KVFlags struct {
	Key   string
	Value string
	// Remote daemon connection; empty means the local store from config
	API APIFlags
}

type StatusFlags struct {
	API APIFlags
}

// APIFlags selects and secures the admin API connection.
type APIFlags struct {
	URL      string
	Timeout  time.Duration
	CACert   string
	Insecure bool
}
