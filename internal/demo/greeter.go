// SPDX-License-Identifier: MPL-2.0

package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rohanprabhu-jm/confinity/pkg/confinity"
)

// GreeterName is the identifier the greeter is registered under.
const GreeterName = "demo.Greeter"

// ErrEmptySubject is returned when a greeting has nobody to greet.
var ErrEmptySubject = errors.New("greeting subject must not be empty")

type (
	// Payload names who to greet.
	Payload struct {
		Subject string `json:"subject" jsonschema:"who to greet"`
	}

	// Result is a greeting plus a few alternatives.
	Result struct {
		Greeting     string   `json:"greeting"`
		Alternatives []string `json:"alternatives"`
	}

	// Greeter builds greetings. Out receives the diagnostic line every
	// call prints; inside a sandbox that is the container output the
	// result decoder has to skip.
	Greeter struct {
		Out io.Writer
	}
)

// Greet implements confinity.HandlerFunc[Payload, Result].
func (g Greeter) Greet(_ context.Context, p Payload) (Result, error) {
	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		return Result{}, ErrEmptySubject
	}
	if g.Out != nil {
		fmt.Fprintln(g.Out, "I'm shouting into nowhere!!")
	}
	return Result{
		Greeting: "Hello, " + subject,
		Alternatives: []string{
			"Bienvenue, " + subject,
			"What's up, " + subject,
		},
	}, nil
}

// String renders r the way the demo prints it.
func (r Result) String() string {
	return fmt.Sprintf("%s (also: %s)", r.Greeting, strings.Join(r.Alternatives, "; "))
}

// RegisterGreeter registers a Greeter writing to out on rt.
func RegisterGreeter(rt *confinity.Runtime, out io.Writer) (*confinity.Handle[Payload, Result], error) {
	return confinity.Register(rt, GreeterName, Greeter{Out: out}.Greet)
}
