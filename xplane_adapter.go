package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"
)

type XPlaneAdapter struct {
	host string
	port int

	mu   sync.Mutex
	conn *net.UDPConn
	data Snapshot
	seen bool
	stop chan struct{}
}

// RREF dataref paths, in subscription index order. RREF carries only
// numeric values, so the string fields of the snapshot (aircraft title,
// GPS waypoint identifiers) stay empty on X-Plane and resolution falls
// back to the route hint or the nearest-airport lookup.
var xplaneDatarefs = []string{
	"sim/flightmodel/position/latitude",              // degrees
	"sim/flightmodel/position/longitude",             // degrees
	"sim/flightmodel/position/elevation",             // altitude MSL (meters)
	"sim/flightmodel/position/y_agl",                 // altitude AGL (meters)
	"sim/flightmodel/position/groundspeed",           // m/s
	"sim/flightmodel/position/vh_ind_fpm",            // vertical speed (fpm)
	"sim/flightmodel/forces/g_nrml",                  // normal load factor (G)
	"sim/flightmodel/position/psi",                   // heading (degrees true)
	"sim/flightmodel/position/theta",                 // pitch (degrees)
	"sim/flightmodel/position/phi",                   // bank (degrees)
	"sim/flightmodel/position/alpha",                 // angle of attack (degrees)
	"sim/flightmodel/position/beta",                  // sideslip (degrees)
	"sim/flightmodel/failures/onground_any",          // 0/1
	"sim/cockpit2/controls/gear_handle_down",         // 0/1
	"sim/cockpit2/controls/flap_handle_deploy_ratio", // 0..1
	"sim/flightmodel/engine/ENGN_running[0]",         // 0/1
	"sim/cockpit2/annunciators/stall_warning",        // 0/1
}

const (
	metersToFeet = 3.28084
	mpsToKnots   = 1.94384
)

func NewXPlaneAdapter(host string, port int) SimConnector {
	return &XPlaneAdapter{
		host: host,
		port: port,
	}
}

func (x *XPlaneAdapter) Name() string {
	return "X-Plane"
}

func (x *XPlaneAdapter) Connect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", x.host, x.port))
	if err != nil {
		return fmt.Errorf("resolve addr: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial udp: %w", err)
	}
	x.conn = conn

	// Subscribe to datarefs using the RREF protocol
	for i, dref := range xplaneDatarefs {
		if err := x.subscribeRREF(i, 1, dref); err != nil {
			conn.Close()
			x.conn = nil
			return fmt.Errorf("subscribe %s: %w", dref, err)
		}
	}

	x.stop = make(chan struct{})
	go x.listenLoop()

	slog.Info("X-Plane UDP connected", "addr", addr.String())
	return nil
}

func (x *XPlaneAdapter) Disconnect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.stop != nil {
		close(x.stop)
		x.stop = nil
	}

	if x.conn != nil {
		// Unsubscribe by sending frequency 0
		for i, dref := range xplaneDatarefs {
			x.subscribeRREF(i, 0, dref)
		}
		x.conn.Close()
		x.conn = nil
	}
	x.seen = false
	return nil
}

func (x *XPlaneAdapter) GetSnapshot() (*Snapshot, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.conn == nil {
		return nil, fmt.Errorf("not connected")
	}
	if !x.seen {
		return nil, fmt.Errorf("waiting for sim data")
	}

	snap := x.data
	return &snap, nil
}

func (x *XPlaneAdapter) subscribeRREF(index, freq int, dataref string) error {
	// RREF packet: "RREF\0" + freq(4 bytes) + index(4 bytes) + dataref(400 bytes null-padded)
	buf := make([]byte, 413)
	copy(buf[0:4], "RREF")
	buf[4] = 0
	binary.LittleEndian.PutUint32(buf[5:9], uint32(freq))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(index))
	copy(buf[13:], dataref)

	_, err := x.conn.Write(buf)
	return err
}

func (x *XPlaneAdapter) listenLoop() {
	buf := make([]byte, 4096)

	// Responses arrive on the socket's local address.
	localAddr := x.conn.LocalAddr().(*net.UDPAddr)
	listener, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		slog.Error("failed to listen for X-Plane responses", "error", err)
		return
	}
	defer listener.Close()

	for {
		select {
		case <-x.stop:
			return
		default:
		}

		listener.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, err := listener.Read(buf)
		if err != nil {
			continue
		}

		if n < 5 || string(buf[0:4]) != "RREF" {
			continue
		}

		// Parse RREF response: header(5) + entries of (index:4 + value:4)
		offset := 5
		for offset+8 <= n {
			idx := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
			val := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[offset+4 : offset+8])))
			offset += 8

			x.mu.Lock()
			x.seen = true
			switch idx {
			case 0:
				x.data.Latitude = val
			case 1:
				x.data.Longitude = val
			case 2:
				x.data.Altitude = val * metersToFeet
			case 3:
				x.data.AltitudeAGL = val * metersToFeet
			case 4:
				x.data.GroundSpeed = val * mpsToKnots
			case 5:
				x.data.VerticalSpeed = val
			case 6:
				x.data.GForce = val
			case 7:
				x.data.Heading = val
			case 8:
				x.data.Pitch = val
			case 9:
				x.data.Bank = val
			case 10:
				x.data.AngleOfAttack = val
			case 11:
				x.data.Sideslip = val
			case 12:
				x.data.OnGround = val != 0
			case 13:
				x.data.GearDown = val != 0
			case 14:
				x.data.FlapsPercent = val * 100
			case 15:
				x.data.EngineOn = val != 0
			case 16:
				x.data.StallWarning = val != 0
			}
			x.mu.Unlock()
		}
	}
}
