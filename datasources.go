package main

import (
	// Import all provider modules to trigger their init() functions
	_ "github.com/rubiojr/statsgrid/pkg/datasources/file"
	_ "github.com/rubiojr/statsgrid/pkg/datasources/rest"
)
