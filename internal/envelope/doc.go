// Package envelope defines the relay's wire formats.
//
// Inbound and normal outbound frames are JSON objects with exactly two string
// fields:
//
//	{"route": "<string>", "data": "<string>"}
//
// Error frames have a different shape and carry no route:
//
//	{"statusCode": 400, "message": "Invalid data format"}
//
// Recipients tell the two apart by shape.
package envelope
