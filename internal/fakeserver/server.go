// Package fakeserver is a scripted protocol server for tests. It serves
// signed HashedDirs, a client binary and client profiles from memory, and
// can be told to reject requests or corrupt what it sends.
package fakeserver

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/adamancini/launchkit/internal/hasher"
	"github.com/adamancini/launchkit/internal/profile"
	"github.com/adamancini/launchkit/internal/request"
	"github.com/adamancini/launchkit/internal/types"
	"github.com/adamancini/launchkit/internal/wire"
)

// Record describes one request the server handled.
type Record struct {
	Type         types.RequestType
	DirName      string
	Native       bool
	ShouldUpdate bool
}

// Server holds the scripted responses. All setters are safe to call while
// the server runs.
type Server struct {
	key *rsa.PrivateKey

	mu             sync.Mutex
	dirs           map[string]*hasher.HashedDir
	rejectDirs     map[string]string
	rejectLauncher string
	binary         []byte
	profiles       []*profile.ClientProfile
	tamperBinary   bool
	tamperDirs     bool
	records        []Record

	ln net.Listener
	wg sync.WaitGroup
}

// New creates a server that signs with key.
func New(key *rsa.PrivateKey) *Server {
	return &Server{
		key:        key,
		dirs:       make(map[string]*hasher.HashedDir),
		rejectDirs: make(map[string]string),
	}
}

// SetDir publishes dir under name.
func (s *Server) SetDir(name string, dir *hasher.HashedDir) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[name] = dir
}

// RejectDir makes update requests for name fail with msg.
func (s *Server) RejectDir(name, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectDirs[name] = msg
}

// RejectLauncher makes launcher requests fail with msg.
func (s *Server) RejectLauncher(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectLauncher = msg
}

// SetBinary sets the current client binary.
func (s *Server) SetBinary(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binary = bytes.Clone(b)
}

// AddProfile publishes a client profile.
func (s *Server) AddProfile(p *profile.ClientProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, p)
}

// TamperBinary flips a byte of the binary after signing it.
func (s *Server) TamperBinary(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tamperBinary = on
}

// TamperDirs flips a byte of every HashedDir payload after signing it.
func (s *Server) TamperDirs(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tamperDirs = on
}

// Records returns the requests handled so far.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Start listens on a loopback port and serves connections until Close.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				_ = s.Serve(conn)
			}()
		}
	}()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener and waits for open connections to finish.
func (s *Server) Close() error {
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.wg.Wait()
	return err
}

// Serve handles a single request on conn and closes it.
func (s *Server) Serve(conn net.Conn) error {
	defer func() { _ = conn.Close() }()

	in := wire.NewReader(conn)
	out := wire.NewWriter(conn)

	magic, err := in.ReadInt()
	if err != nil {
		return err
	}
	if magic != request.Magic {
		return fmt.Errorf("bad magic %#x", magic)
	}
	code, err := in.ReadVarInt()
	if err != nil {
		return err
	}
	rt, err := types.RequestTypeFromCode(code)
	if err != nil {
		return err
	}

	switch rt {
	case types.RequestTypeUpdate:
		return s.serveUpdate(in, out)
	case types.RequestTypeLauncher:
		return s.serveLauncher(in, out)
	}
	return errors.New("unreachable")
}

func (s *Server) serveUpdate(in *wire.Reader, out *wire.Writer) error {
	dirName, err := in.ReadString(wire.Bounded(hasher.MaxNameLength))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = append(s.records, Record{Type: types.RequestTypeUpdate, DirName: dirName})
	reject, rejected := s.rejectDirs[dirName]
	dir, known := s.dirs[dirName]
	tamper := s.tamperDirs
	s.mu.Unlock()

	switch {
	case rejected:
		return s.fail(out, reject)
	case !known:
		return s.fail(out, fmt.Sprintf("unknown directory %q", dirName))
	}

	raw, err := hasher.Marshal(dir)
	if err != nil {
		return err
	}
	sig := s.sign(raw)
	if tamper {
		raw = flip(raw)
	}

	if err := request.WriteError(out, ""); err != nil {
		return err
	}
	if err := writeSigned(out, sig, raw); err != nil {
		return err
	}
	return out.Flush()
}

func (s *Server) serveLauncher(in *wire.Reader, out *wire.Writer) error {
	native, err := in.ReadBoolean()
	if err != nil {
		return err
	}

	s.mu.Lock()
	reject := s.rejectLauncher
	binary := bytes.Clone(s.binary)
	profiles := append([]*profile.ClientProfile(nil), s.profiles...)
	tamper := s.tamperBinary
	s.mu.Unlock()

	if reject != "" {
		s.record(Record{Type: types.RequestTypeLauncher, Native: native})
		return s.fail(out, reject)
	}

	sig := s.sign(binary)
	if err := request.WriteError(out, ""); err != nil {
		return err
	}
	if err := out.WriteByteArray(sig, wire.Fixed(len(sig))); err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return err
	}

	shouldUpdate, err := in.ReadBoolean()
	if err != nil {
		return err
	}
	s.record(Record{Type: types.RequestTypeLauncher, Native: native, ShouldUpdate: shouldUpdate})

	if shouldUpdate {
		if tamper {
			binary = flip(binary)
		}
		if err := out.WriteByteArray(binary, wire.Unbounded); err != nil {
			return err
		}
		return out.Flush()
	}

	if err := out.WriteLength(len(profiles), wire.Bounded(request.MaxProfiles)); err != nil {
		return err
	}
	for _, p := range profiles {
		var buf bytes.Buffer
		pw := wire.NewWriter(&buf)
		if err := profile.Encode(pw, p); err != nil {
			return err
		}
		if err := pw.Flush(); err != nil {
			return err
		}
		raw := buf.Bytes()
		if err := writeSigned(out, s.sign(raw), raw); err != nil {
			return err
		}
	}
	return out.Flush()
}

func (s *Server) record(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

func (s *Server) fail(out *wire.Writer, msg string) error {
	if err := request.WriteError(out, msg); err != nil {
		return err
	}
	return out.Flush()
}

// sign produces a SHA256withRSA signature. Signing never fails for a valid key.
func (s *Server) sign(raw []byte) []byte {
	digest := sha256.Sum256(raw)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		panic(fmt.Sprintf("fakeserver: sign: %v", err))
	}
	return sig
}

// SignatureOf returns the server's signature over raw, so tests can prepare
// matching local files.
func (s *Server) SignatureOf(raw []byte) []byte {
	return s.sign(raw)
}

func writeSigned(out *wire.Writer, sig, raw []byte) error {
	if err := out.WriteByteArray(sig, wire.Fixed(len(sig))); err != nil {
		return err
	}
	return out.WriteByteArray(raw, wire.Unbounded)
}

func flip(b []byte) []byte {
	out := bytes.Clone(b)
	if len(out) == 0 {
		return []byte{0xFF}
	}
	out[len(out)/2] ^= 0xFF
	return out
}
