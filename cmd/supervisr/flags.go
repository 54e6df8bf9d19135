package main

import "time"

// Flag structs decouple cobra wiring from command logic for testing.

type ServeFlags struct {
	ConfigPath string
	Listen     string
	BasePath   string
	Metrics    string
}

type CreateFlags struct {
	Name         string
	Command      string
	WorkDir      string
	LogDir       string
	StartTimeout time.Duration
	APIFlags
}

type TaskFlags struct {
	Name    string
	Timeout time.Duration
	APIFlags
}

type APIFlags struct {
	APIUrl     string
	APITimeout time.Duration
}
