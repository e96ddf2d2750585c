// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	EngineNotAvailableId Id = iota + 1
	BundlingFailedId
	ImageBuildFailedId
	ProtocolViolationId
	ConfigLoadFailedId
	NotCommittedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guide as terminal markdown using the given glamour style
// ("dark", "light", "notty", ...).
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	engineNotAvailableIssue = &Issue{
		id: EngineNotAvailableId,
		mdMsg: `
# No container engine is reachable!

Every call runs in a fresh container, so confinity needs a working engine.

## Things you can try:
- Check that the Docker daemon is running:
~~~
$ docker info
~~~
- Point confinity at a remote daemon:
~~~
$ export CONFINITY_ENGINE_HOST=unix:///run/user/1000/podman/podman.sock
~~~
- Switch to the CLI engines in your config file:
~~~cue
engine: "podman"
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/"},
	}

	bundlingFailedIssue = &Issue{
		id: BundlingFailedId,
		mdMsg: `
# The artifact closure is incomplete!

A handler, payload type, result type or declared dependency could not be
located while staging the bundle. The sandbox only sees what is bundled.

## Things you can try:
- Check the dependency identifiers passed to ` + "`Register`" + `
- Check that every path listed under ` + "`vendored`" + ` exists
- Make sure two vendored files do not share a basename`,
	}

	imageBuildFailedIssue = &Issue{
		id: ImageBuildFailedId,
		mdMsg: `
# The sandbox image could not be built!

## Things you can try:
- Make sure the base image can be pulled:
~~~
$ docker pull gcr.io/distroless/static-debian12
~~~
- Keep the staging directory and build it by hand:
~~~cue
staging: keep: true
~~~
- Re-run with ` + "`--verbose`" + ` to see the engine output`,
	}

	protocolViolationIssue = &Issue{
		id: ProtocolViolationId,
		mdMsg: `
# The sandbox ran but returned no result!

The container exited without printing a bracketed result frame on its
standard output. This usually means the handler panicked, the payload did
not match its schema, or the dispatcher inside the image does not know the
handler identifier.

## Things you can try:
- Look at the captured output attached to the error
- Rebuild the image after changing handlers (` + "`Commit`" + ` again in a new process)`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# The configuration file could not be loaded!

## Things you can try:
- Print the effective configuration:
~~~
$ confinity config show
~~~
- Write a fresh default file:
~~~
$ confinity config init
~~~`,
	}

	notCommittedIssue = &Issue{
		id: NotCommittedId,
		mdMsg: `
# The registry has not been committed!

Calls need the sandbox image, which only exists after ` + "`Commit`" + `.

## Things you can try:
- Register every handler first, then call ` + "`Commit`" + ` once
- Check the error returned by ` + "`Commit`" + ``,
	}

	issues = map[Id]*Issue{
		engineNotAvailableIssue.Id(): engineNotAvailableIssue,
		bundlingFailedIssue.Id():     bundlingFailedIssue,
		imageBuildFailedIssue.Id():   imageBuildFailedIssue,
		protocolViolationIssue.Id():  protocolViolationIssue,
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		notCommittedIssue.Id():       notCommittedIssue,
	}
)

// Values returns every catalog issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
