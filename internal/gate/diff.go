package gate

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

var lockfileNames = map[string]bool{
	"go.sum":            true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"Cargo.lock":        true,
	"poetry.lock":       true,
	"Gemfile.lock":      true,
	"composer.lock":     true,
	"uv.lock":           true,
}

var manifestNames = map[string]bool{
	"go.mod":           true,
	"package.json":     true,
	"Cargo.toml":       true,
	"pyproject.toml":   true,
	"requirements.txt": true,
	"Gemfile":          true,
	"composer.json":    true,
}

func isLockfile(p string) bool { return lockfileNames[path.Base(p)] }
func isManifest(p string) bool { return manifestNames[path.Base(p)] }

var (
	issueRefRe = regexp.MustCompile(`#\d+`)
	urlRe      = regexp.MustCompile(`https?://\S+`)
	pathLineRe = regexp.MustCompile(`[\w./-]+\.[A-Za-z]\w*:\d+`)
)

// evidenceKeywords are the repro/log markers accepted as supporting evidence.
var evidenceKeywords = []string{"repro", "reproduce", "log", "trace", "stack", "error:"}

// hasEvidence reports whether a description carries at least one verifiable
// reference: issue link, URL, path:line, or a repro/log keyword.
func hasEvidence(body string) bool {
	if issueRefRe.MatchString(body) || urlRe.MatchString(body) || pathLineRe.MatchString(body) {
		return true
	}
	lower := strings.ToLower(body)
	for _, kw := range evidenceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// mentionsPackage reports whether the (lowercased) description names a
// package. Go module paths also match on their final path segment, since
// descriptions rarely spell out the full import path.
func mentionsPackage(lowerBody, pkg string) bool {
	pkg = strings.ToLower(pkg)
	if strings.Contains(lowerBody, pkg) {
		return true
	}
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		return strings.Contains(lowerBody, pkg[i+1:])
	}
	return false
}

// diffSection is the diff body for one file.
type diffSection struct {
	Path  string
	Lines []string
}

var diffHeaderRe = regexp.MustCompile(`^diff --git a/(\S+) b/(\S+)`)

// splitDiff carves a unified diff into per-file sections.
func splitDiff(diff string) []diffSection {
	var sections []diffSection
	var cur *diffSection
	for _, line := range strings.Split(diff, "\n") {
		if m := diffHeaderRe.FindStringSubmatch(line); m != nil {
			sections = append(sections, diffSection{Path: m[2]})
			cur = &sections[len(sections)-1]
			continue
		}
		if cur != nil {
			cur.Lines = append(cur.Lines, line)
		}
	}
	return sections
}

// depEntry is one pinned dependency parsed from a manifest line.
type depEntry struct {
	Name  string
	Major int
}

var depLineRes = []*regexp.Regexp{
	// go.mod: require lines like "\tgithub.com/foo/bar v2.1.0"
	regexp.MustCompile(`^\s*([\w.\-~]+(?:/[\w.\-~]+)+)\s+v(\d+)\.\d+`),
	// package.json / composer.json: "name": "^2.1.0"
	regexp.MustCompile(`"([@\w/.\-]+)"\s*:\s*"[~^]?(\d+)\.\d+`),
	// Cargo.toml / pyproject.toml: name = "2.1.0"
	regexp.MustCompile(`^([\w\-]+)\s*=\s*"[~^]?(\d+)\.\d+`),
	// requirements.txt: name==2.1.0
	regexp.MustCompile(`^([\w\-\[\]]+)==(\d+)\.\d+`),
}

func parseDepLine(line string) (depEntry, bool) {
	for _, re := range depLineRes {
		if m := re.FindStringSubmatch(line); m != nil {
			major, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			return depEntry{Name: m[1], Major: major}, true
		}
	}
	return depEntry{}, false
}

// manifestPackages returns the names of packages added, removed, or changed
// in manifest files, in first-seen order.
func manifestPackages(diff string) []string {
	seen := map[string]bool{}
	var pkgs []string
	for _, sec := range splitDiff(diff) {
		if !isManifest(sec.Path) {
			continue
		}
		for _, line := range sec.Lines {
			if len(line) == 0 || (line[0] != '+' && line[0] != '-') {
				continue
			}
			if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
				continue
			}
			if dep, ok := parseDepLine(line[1:]); ok && !seen[dep.Name] {
				seen[dep.Name] = true
				pkgs = append(pkgs, dep.Name)
			}
		}
	}
	return pkgs
}

// majorBump is a pinned dependency whose major version increased.
type majorBump struct {
	Name string
	From int
	To   int
}

// majorBumps pairs removed and added manifest entries by package name and
// reports every major-version increase.
func majorBumps(diff string) []majorBump {
	var bumps []majorBump
	for _, sec := range splitDiff(diff) {
		if !isManifest(sec.Path) {
			continue
		}
		removed := map[string]int{}
		for _, line := range sec.Lines {
			if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
				if dep, ok := parseDepLine(line[1:]); ok {
					removed[dep.Name] = dep.Major
				}
			}
		}
		for _, line := range sec.Lines {
			if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
				dep, ok := parseDepLine(line[1:])
				if !ok {
					continue
				}
				if from, had := removed[dep.Name]; had && dep.Major > from {
					bumps = append(bumps, majorBump{Name: dep.Name, From: from, To: dep.Major})
				}
			}
		}
	}
	return bumps
}
