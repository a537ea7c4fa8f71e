package bastionlib

import "testing"

func TestBucketKeyString(t *testing.T) {
	t.Parallel()

	key := BucketKey{Bucket: "votes", UserID: "u1", IPHash: "aabb", UAHash: "ccdd"}
	if v := key.String(); v != "votes|u1|aabb|ccdd" {
		t.Errorf("unexpected serialization: %s", v)
	}

	// Пустые поля сохраняют позицию: (user="a", ip="") и (user="",
	// ip="a") — разные ключи.
	left := BucketKey{Bucket: "b", UserID: "a"}
	right := BucketKey{Bucket: "b", IPHash: "a"}

	if left.String() == right.String() {
		t.Error("keys with shifted fields must not collide")
	}
}
