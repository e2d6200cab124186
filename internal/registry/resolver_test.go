// ABOUTME: Tests for image reference resolution.
// ABOUTME: Covers bare tags, qualified registries, digests, and Docker Hub defaults.

package registry

import (
	"testing"

	"github.com/vigilsec/vulnengine/internal/types"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  types.ImageReference
	}{
		{
			name:  "bare official image with tag",
			input: "alpine:3.18",
			want: types.ImageReference{
				Registry:   "registry-1.docker.io",
				Repository: "library/alpine",
				Tag:        "3.18",
				FullName:   "registry-1.docker.io/library/alpine:3.18",
			},
		},
		{
			name:  "bare official image without tag",
			input: "nginx",
			want: types.ImageReference{
				Registry:   "registry-1.docker.io",
				Repository: "library/nginx",
				Tag:        "latest",
				FullName:   "registry-1.docker.io/library/nginx:latest",
			},
		},
		{
			name:  "user repository on docker hub",
			input: "myorg/app:v1.2.3",
			want: types.ImageReference{
				Registry:   "registry-1.docker.io",
				Repository: "myorg/app",
				Tag:        "v1.2.3",
				FullName:   "registry-1.docker.io/myorg/app:v1.2.3",
			},
		},
		{
			name:  "fully qualified registry",
			input: "ghcr.io/org/app:2.0",
			want: types.ImageReference{
				Registry:   "ghcr.io",
				Repository: "org/app",
				Tag:        "2.0",
				FullName:   "ghcr.io/org/app:2.0",
			},
		},
		{
			name:  "digest pinned reference",
			input: "ghcr.io/org/app@sha256:abcd1234",
			want: types.ImageReference{
				Registry:   "ghcr.io",
				Repository: "org/app",
				Tag:        "latest",
				Digest:     "sha256:abcd1234",
				FullName:   "ghcr.io/org/app:latest",
			},
		},
		{
			name:  "registry with port",
			input: "localhost:5000/team/app:dev",
			want: types.ImageReference{
				Registry:   "localhost:5000",
				Repository: "team/app",
				Tag:        "dev",
				FullName:   "localhost:5000/team/app:dev",
			},
		},
		{
			name:  "registry marker without dot",
			input: "gcr/project/app:1.0",
			want: types.ImageReference{
				Registry:   "gcr",
				Repository: "project/app",
				Tag:        "1.0",
				FullName:   "gcr/project/app:1.0",
			},
		},
		{
			name:  "quay registry",
			input: "quay.io/coreos/etcd:v3.5.0",
			want: types.ImageReference{
				Registry:   "quay.io",
				Repository: "coreos/etcd",
				Tag:        "v3.5.0",
				FullName:   "quay.io/coreos/etcd:v3.5.0",
			},
		},
		{
			name:  "digest on bare repository",
			input: "alpine@sha256:ffff",
			want: types.ImageReference{
				Registry:   "registry-1.docker.io",
				Repository: "library/alpine",
				Tag:        "latest",
				Digest:     "sha256:ffff",
				FullName:   "registry-1.docker.io/library/alpine:latest",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.input)
			if got != tc.want {
				t.Errorf("Resolve(%q) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestResolveNeverFails(t *testing.T) {
	// Resolution is total; odd inputs still yield a usable reference.
	for _, input := range []string{"", ":", "a/b/c/d:e", "weird@@thing"} {
		got := Resolve(input)
		if got.Registry == "" || got.Tag == "" {
			t.Errorf("Resolve(%q) produced empty registry or tag: %+v", input, got)
		}
	}
}
