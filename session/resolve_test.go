package session

import (
	"errors"
	"testing"
)

func TestResolve_UnknownSession(t *testing.T) {
	r := testRegistry()
	if _, err := r.ResolveSurface("sess_nope", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("error: got %v", err)
	}
}

func TestResolve_ZeroSurfaces(t *testing.T) {
	r := testRegistry()
	s := r.Create()
	_, err := r.ResolveSurface(s.ID, "")
	if !errors.Is(err, ErrNoSurfaces) {
		t.Fatalf("error: got %v", err)
	}
}

func TestResolve_SingleAutoSelect(t *testing.T) {
	r := testRegistry()
	s := r.Create()
	ref := &SurfaceRef{Kind: KindWeb, URL: "http://x/only"}
	r.SetSurface(s.ID, "http://x/only", ref)

	res, err := r.ResolveSurface(s.ID, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Ref != ref || res.Identifier != "http://x/only" {
		t.Fatalf("resolved: %+v", res)
	}
}

func TestResolve_MultipleAmbiguous(t *testing.T) {
	r := testRegistry()
	s := r.Create()
	r.SetSurface(s.ID, "http://x/a", &SurfaceRef{Kind: KindWeb})
	r.SetSurface(s.ID, "http://x/b", &SurfaceRef{Kind: KindWeb})
	r.SetSurface(s.ID, EmbeddedIdentifier, &SurfaceRef{Kind: KindEmbedded})

	_, err := r.ResolveSurface(s.ID, "")
	var amb *AmbiguousSurfaceError
	if !errors.As(err, &amb) {
		t.Fatalf("error: got %v, want AmbiguousSurfaceError", err)
	}
	if len(amb.Available) != 3 {
		t.Fatalf("available: got %v, want 3 identifiers", amb.Available)
	}
}

func TestResolve_ExplicitIdentifier(t *testing.T) {
	r := testRegistry()
	s := r.Create()
	ref := &SurfaceRef{Kind: KindWeb}
	r.SetSurface(s.ID, "http://x/a", ref)
	r.SetSurface(s.ID, "http://x/b", &SurfaceRef{Kind: KindWeb})

	res, err := r.ResolveSurface(s.ID, "http://x/a")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Ref != ref {
		t.Fatal("resolved wrong surface")
	}
}

func TestResolve_UnknownIdentifierListsAvailable(t *testing.T) {
	r := testRegistry()
	s := r.Create()
	r.SetSurface(s.ID, "http://x/a", &SurfaceRef{Kind: KindWeb})

	_, err := r.ResolveSurface(s.ID, "http://x/missing")
	var unknown *UnknownIdentifierError
	if !errors.As(err, &unknown) {
		t.Fatalf("error: got %v, want UnknownIdentifierError", err)
	}
	if len(unknown.Available) != 1 || unknown.Available[0] != "http://x/a" {
		t.Fatalf("available: got %v", unknown.Available)
	}
}
