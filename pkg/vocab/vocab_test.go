package vocab

import (
	"errors"
	"reflect"
	"testing"

	"github.com/SinanGncgl/RustGPT/pkg/errs"
)

func TestSpecialTokensHaveStableIDs(t *testing.T) {
	v := New([]string{"hello", "world"})
	if v.PadID() != 0 || v.UnknownID() != 1 || v.EndID() != 2 {
		t.Fatalf("special ids = %d/%d/%d, want 0/1/2", v.PadID(), v.UnknownID(), v.EndID())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := New([]string{"the", "sun", "rises"})
	for _, tok := range v.Tokens() {
		id, ok := v.Encode(tok)
		if !ok {
			t.Fatalf("Encode(%q) missed", tok)
		}
		back, ok := v.Decode(id)
		if !ok || back != tok {
			t.Fatalf("Decode(Encode(%q)) = %q", tok, back)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	corpus := []string{"the sun rises in the east", "rain falls from clouds"}
	a := Build(corpus)
	b := Build(corpus)
	if !reflect.DeepEqual(a.Tokens(), b.Tokens()) {
		t.Fatal("identical corpora produced different vocabularies")
	}
}

func TestEncodeTextSubstitutesUnknown(t *testing.T) {
	v := New([]string{"hello"})
	ids := v.EncodeText("hello zyxwv")
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	if ids[1] != v.UnknownID() {
		t.Fatalf("unknown word encoded as %d, want %d", ids[1], v.UnknownID())
	}
}

func TestEncodeOrErrUnknownToken(t *testing.T) {
	v := New(nil)
	_, err := v.EncodeOrErr("missing")
	if !errors.Is(err, errs.ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
}

func TestDecodeOrErrInvalidID(t *testing.T) {
	v := New(nil)
	_, err := v.DecodeOrErr(v.Size())
	if !errors.Is(err, errs.ErrInvalidID) {
		t.Fatalf("err = %v, want ErrInvalidID", err)
	}
	if _, err := v.DecodeOrErr(-1); !errors.Is(err, errs.ErrInvalidID) {
		t.Fatalf("negative id err = %v, want ErrInvalidID", err)
	}
}

func TestSplitTextSeparatesPunctuation(t *testing.T) {
	got := SplitText("The mountains, tall and old.")
	want := []string{"The", "mountains", ",", "tall", "and", "old", "."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitText = %v, want %v", got, want)
	}
}

func TestSplitTextKeepsEndMarkerIntact(t *testing.T) {
	got := SplitText("hello </s>")
	if len(got) != 2 || got[1] != EndToken {
		t.Fatalf("SplitText = %v, want end marker preserved", got)
	}
}

func TestDecodeIDsSkipsPadding(t *testing.T) {
	v := New([]string{"sky"})
	id, _ := v.Encode("sky")
	out := v.DecodeIDs([]int{v.PadID(), id, v.PadID()})
	if out != "sky" {
		t.Fatalf("DecodeIDs = %q, want %q", out, "sky")
	}
}
