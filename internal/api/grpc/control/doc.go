// Package control implements the gRPC transport of the watcher's control
// service, sleepwatch.v1.AlarmControl.
//
// Messages are protobuf well-known types: requests are google.protobuf.Empty
// or a Struct carrying the calling actor, responses are Structs describing
// the alarm state or the detection history. The service descriptor and the
// client stub are written by hand in the shape protoc-gen-go-grpc produces.
package control
