package redis

import "testing"

func TestParseInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\nos:Linux\r\n\r\n# Clients\r\nconnected_clients:3\r\n# Stats\r\nkeyspace_hits:42\r\nkeyspace_misses:7\r\n"

	stats := ParseInfo(info)
	want := map[string]string{
		"redis_version":     "7.2.4",
		"connected_clients": "3",
		"keyspace_hits":     "42",
		"keyspace_misses":   "7",
	}
	if len(stats) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), stats)
	}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("%s = %q, want %q", k, stats[k], v)
		}
	}
	if _, ok := stats["os"]; ok {
		t.Error("untracked field should be dropped")
	}
}
