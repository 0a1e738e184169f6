package main

import (
	"os"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about published client cases, citing the case pages it used.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: ragbot API
//   description: |
//     Retrieval-augmented question answering over an indexed corpus of case pages.
//     Answers carry numbered citations that link to the source pages.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	os.Exit(execute())
}
