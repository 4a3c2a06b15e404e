package gamedb

import (
	"testing"
	"time"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		input string
		want  DBRef
		ok    bool
	}{
		{"#12", 12, true},
		{"12", 12, true},
		{" #3 ", 3, true},
		{"#-1", -1, true},
		{"#", Nothing, false},
		{"", Nothing, false},
		{"#twelve", Nothing, false},
		{"#12a", Nothing, false},
	}
	for _, tt := range tests {
		got, err := ParseRef(tt.input)
		if tt.ok && err != nil {
			t.Errorf("ParseRef(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("ParseRef(%q): expected error, got %v", tt.input, got)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRef(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRefString(t *testing.T) {
	if got := DBRef(42).String(); got != "#42" {
		t.Errorf("expected #42, got %s", got)
	}
	if got := Nothing.String(); got != "#-1" {
		t.Errorf("expected #-1, got %s", got)
	}
}

func TestAllocateStartsAtOne(t *testing.T) {
	db := NewDatabase()
	if ref := db.Allocate(); ref != 1 {
		t.Fatalf("expected first ref 1, got %v", ref)
	}
	if ref := db.Allocate(); ref != 2 {
		t.Fatalf("expected second ref 2, got %v", ref)
	}
}

func TestBumpOnLoad(t *testing.T) {
	db := NewDatabase()
	db.AddObject(&Object{Ref: 50, Key: "Limbo"})
	if ref := db.Allocate(); ref != 51 {
		t.Errorf("expected allocator past loaded ref, got %v", ref)
	}
	// Lower refs must not move the allocator backwards.
	db.AddObject(&Object{Ref: 10, Key: "Void"})
	if ref := db.Allocate(); ref != 52 {
		t.Errorf("expected 52, got %v", ref)
	}
}

func TestFindAccountCaseInsensitive(t *testing.T) {
	db := NewDatabase()
	db.AddAccount(&Account{Ref: 1, Username: "Marisa"})

	if a := db.FindAccount("marisa"); a == nil || a.Ref != 1 {
		t.Error("expected case-insensitive username match")
	}
	if a := db.FindAccount("MARISA"); a == nil {
		t.Error("expected uppercase match")
	}
	if a := db.FindAccount("nobody"); a != nil {
		t.Errorf("expected nil for unknown account, got %v", a)
	}
}

func TestFindChannelByAlias(t *testing.T) {
	db := NewDatabase()
	db.AddChannel(&Channel{Ref: 2, Key: "Public", Aliases: []string{"pub", "ooc"}})

	if c := db.FindChannel("public"); c == nil {
		t.Fatal("expected key match")
	}
	if c := db.FindChannel("OOC"); c == nil || c.Key != "Public" {
		t.Error("expected alias match")
	}
	if c := db.FindChannel("private"); c != nil {
		t.Error("expected nil for unknown channel")
	}
}

func TestFindHelpByAlias(t *testing.T) {
	db := NewDatabase()
	db.AddHelp(&HelpEntry{Ref: 3, Key: "movement", Aliases: []string{"travel"}})

	if h := db.FindHelp("Travel"); h == nil || h.Key != "movement" {
		t.Error("expected alias match")
	}
}

func TestFindScript(t *testing.T) {
	db := NewDatabase()
	db.AddScript(&Script{Ref: 4, Key: "weather_tick", Interval: 60})

	if s := db.FindScript("Weather_Tick"); s == nil || s.Ref != 4 {
		t.Error("expected case-insensitive script match")
	}
	if s := db.FindScript("missing"); s != nil {
		t.Error("expected nil for unknown script")
	}
}

func TestCounts(t *testing.T) {
	db := NewDatabase()
	db.AddObject(&Object{Ref: db.Allocate(), Key: "Limbo"})
	db.AddObject(&Object{Ref: db.Allocate(), Key: "Char"})
	db.AddAccount(&Account{Ref: db.Allocate(), Username: "admin"})

	counts := db.Counts()
	if counts[TableObject] != 2 {
		t.Errorf("expected 2 objects, got %d", counts[TableObject])
	}
	if counts[TableAccount] != 1 {
		t.Errorf("expected 1 account, got %d", counts[TableAccount])
	}
	if counts[TableMsg] != 0 {
		t.Errorf("expected 0 msgs, got %d", counts[TableMsg])
	}
}

func TestChannelSubscribed(t *testing.T) {
	c := &Channel{Ref: 5, Key: "Public", Subscribers: []DBRef{7, 9}}
	if !c.Subscribed(7) {
		t.Error("expected #7 subscribed")
	}
	if c.Subscribed(8) {
		t.Error("expected #8 not subscribed")
	}
}

func TestPackRefCarriesTableAndKey(t *testing.T) {
	o := &Object{Ref: 12, Key: "Limbo", CreatedAt: time.Now()}
	p := o.PackRef()
	if p.Table != TableObject || p.Ref != 12 || p.Key != "Limbo" {
		t.Errorf("unexpected packed ref: %+v", p)
	}

	s := &Script{Ref: 13, Key: "tick"}
	if p := s.PackRef(); p.Table != TableScript || p.Ref != 13 {
		t.Errorf("unexpected packed ref: %+v", p)
	}

	a := &Account{Ref: 14, Username: "admin"}
	if p := a.PackRef(); p.Table != TableAccount || p.Key != "admin" {
		t.Errorf("unexpected packed ref: %+v", p)
	}
}
