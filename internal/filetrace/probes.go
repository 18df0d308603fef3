package filetrace

import "github.com/mrzor/file-tracer/internal/eventbus"

// The probes below are the only code the event bus calls. Each one checks
// the enabled flag and turns the tracepoint arguments into an Event.

func (t *Tracer) probeOpen(a eventbus.OpenArgs) {
	if !t.enabled.Load() {
		return
	}
	t.hit(KindOpen)
	t.formatter.Format(FileOpen{Pid: a.Pid, Filename: a.Filename, Flags: a.Flags, Mode: a.Mode, Ret: a.Ret})
}

func (t *Tracer) probeClose(a eventbus.CloseArgs) {
	if !t.enabled.Load() {
		return
	}
	t.hit(KindClose)
	t.formatter.Format(FileClose{Pid: a.Pid, Fd: a.Fd, Ret: a.Ret})
}

func (t *Tracer) probeLseek(a eventbus.LseekArgs) {
	if !t.enabled.Load() {
		return
	}
	t.hit(KindLseek)
	t.formatter.Format(FileSeek{Pid: a.Pid, Fd: a.Fd, Offset: a.Offset, Whence: a.Whence, Ret: a.Ret})
}

func (t *Tracer) probeRead(a eventbus.ReadArgs) {
	if !t.enabled.Load() {
		return
	}
	t.hit(KindRead)
	t.formatter.Format(FileRead{Pid: a.Pid, Fd: a.Fd, Size: a.Size, Ret: a.Ret, Buf: a.Buf})
}

func (t *Tracer) probeWrite(a eventbus.WriteArgs) {
	if !t.enabled.Load() {
		return
	}
	t.hit(KindWrite)
	t.formatter.Format(FileWrite{Pid: a.Pid, Fd: a.Fd, Size: a.Size, Ret: a.Ret, Buf: a.Buf})
}

func (t *Tracer) bindings(bus *eventbus.Bus) []Binding {
	return []Binding{
		bindProbe(bus.FileOpen, t.probeOpen),
		bindProbe(bus.FileClose, t.probeClose),
		bindProbe(bus.FileLseek, t.probeLseek),
		bindProbe(bus.FileRead, t.probeRead),
		bindProbe(bus.FileWrite, t.probeWrite),
	}
}
