package session

import (
	"errors"
	"testing"
	"time"
)

// FuzzDecodeSession feeds arbitrary blobs to the record decoder. Invalid input
// must surface as ErrCorrupt, never a panic.
func FuzzDecodeSession(f *testing.F) {
	f.Add([]byte(""))
	f.Add([]byte("{}"))
	f.Add([]byte(`{"v":1}`))
	f.Add([]byte(`{"v":2,"s":{}}`))
	f.Add([]byte("not json"))

	valid, err := encode(&Session{
		ID:                  "sid",
		UserID:              "u1",
		OrganizationID:      "org-1",
		Role:                "MANAGER",
		AssignedDepartments: []string{"d1"},
		CreatedAt:           time.Unix(1700000000, 0).UTC(),
		LastActivityAt:      time.Unix(1700000100, 0).UTC(),
		IP:                  "10.0.0.1",
		UserAgent:           "ua",
	})
	if err == nil {
		f.Add(valid)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		sess, err := decode(data)
		if err != nil {
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("decode error not ErrCorrupt: %v", err)
			}
			return
		}

		again, err := encode(sess)
		if err != nil {
			t.Fatalf("re-encode failed: %v", err)
		}
		sess2, err := decode(again)
		if err != nil {
			t.Fatalf("roundtrip decode failed: %v", err)
		}
		if sess2.ID != sess.ID || sess2.UserID != sess.UserID || sess2.IP != sess.IP {
			t.Errorf("roundtrip mismatch: %+v vs %+v", sess2, sess)
		}
	})
}
