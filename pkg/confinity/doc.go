// SPDX-License-Identifier: MPL-2.0

// Package confinity runs registered handlers inside single-use, network-disabled
// containers.
//
// A Runtime moves through three phases. Handlers are registered with Register
// while the runtime is open. Commit bundles every handler together with its
// dependency closure and builds one sandbox image; from then on the runtime is
// locked. Each Handle.Call creates a fresh container from that image, passes
// the serialized payload on the command line and recovers the result from the
// container's standard output. Containers are reclaimed in the background and
// everything still tracked is removed by Close.
//
// The same program serves the sandbox side: the image entrypoint is the
// program's own executable, which must register the same handlers and hand
// its arguments to Runtime.Dispatch.
//
//	rt, err := confinity.New()
//	...
//	defer rt.Close(context.Background())
//	greet, err := confinity.Register(rt, "demo.Greeter", greeter)
//	...
//	if err := rt.Commit(ctx); err != nil { ... }
//	res, err := greet.Call(ctx, Payload{Name: "rohan1"})
package confinity
