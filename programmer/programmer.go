// Package programmer is the top-level façade: given a board profile and
// a port, it owns the serial device, transport, and protocol engine for
// one programming session, and exposes the three ways a caller might
// hand it firmware (a hex file path, hex text already in memory, or a
// raw binary image already decoded).
package programmer

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/stephenkingston/avrman/avrerr"
	"github.com/stephenkingston/avrman/boards"
	"github.com/stephenkingston/avrman/ihex"
	"github.com/stephenkingston/avrman/serialport"
	"github.com/stephenkingston/avrman/stk500"
	"github.com/stephenkingston/avrman/transport"
)

// Programmer drives one programming session end to end.
type Programmer struct {
	dev    *serialport.SerialDevice
	trans  *transport.Transport
	engine *stk500.Engine

	pageSize     uint16
	verify       bool
	progressBars bool
}

// New opens port at the baud profile specifies and wires up the
// transport and engine underneath it. The caller owns the returned
// Programmer and must Close it.
func New(profile boards.Profile, port string) (*Programmer, error) {
	dev, err := serialport.Open(port, profile.Baud)
	if err != nil {
		return nil, avrerr.NewCommunication("open "+port, err)
	}

	t := transport.New(dev)
	params := stk500.Params{
		Signature: profile.Signature,
		PageSize:  profile.PageSize,
		NumPages:  profile.NumPages,
	}
	engine := stk500.New(t, params)

	return &Programmer{
		dev:      dev,
		trans:    t,
		engine:   engine,
		pageSize: profile.PageSize,
		verify:   true,
	}, nil
}

// SetVerify toggles the post-upload readback comparison. Verification is
// enabled by default.
func (p *Programmer) SetVerify(enable bool) {
	p.verify = enable
}

// SetProgressBar toggles a terminal progress bar tracking pages
// written/verified during the run.
func (p *Programmer) SetProgressBar(enable bool) {
	p.progressBars = enable
}

// ProgramHexFile reads path as Intel HEX and programs its contents.
func (p *Programmer) ProgramHexFile(path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return avrerr.NewFirmware("read "+path, err)
	}
	return p.ProgramHexBuffer(string(text))
}

// ProgramHexBuffer decodes text as Intel HEX and programs its contents.
func (p *Programmer) ProgramHexBuffer(text string) error {
	bin, err := ihex.Parse(text)
	if err != nil {
		return err
	}
	return p.ProgramBinary(bin)
}

// ProgramBinary runs a full session against an already-decoded flash
// image: reset, sync, identify, configure, upload, optional verify.
func (p *Programmer) ProgramBinary(bin []byte) error {
	var bar *progressbar.ProgressBar
	if p.progressBars {
		totalPages := (len(bin) + int(p.pageSize) - 1) / int(p.pageSize)
		bar = progressbar.Default(int64(totalPages), "programming")
		p.engine.OnProgress = func(done, total int) {
			bar.Describe(fmt.Sprintf("page %d/%d", done, total))
			bar.Set(done)
		}
		defer bar.Finish()
	}
	return p.engine.Run(bin, p.verify)
}

// Close tears down the engine's transport and the underlying serial
// device, in that order.
func (p *Programmer) Close() error {
	return p.trans.Close()
}
