package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"timeclock/internal/auth"
	"timeclock/internal/db/models"
	"timeclock/internal/shift"

	"github.com/google/uuid"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  login <pin>                               log in with your PIN
  logout                                    end the session
  register <first> <last> <pin> <code> [email]
  in                                        clock in
  out [notes...]                            clock out
  break [reason...]                         start a break
  resume                                    end the break
  status                                    show shift and location
  online                                    list employees online
  help
  quit`

// Run reads one command per line until in is exhausted, quit is entered or
// ctx is cancelled.
func (a *Agent) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	fmt.Fprintln(a.out, "type 'help' for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := a.Exec(ctx, line); errors.Is(err, errQuit) {
				return nil
			}
		}
	}
}

// Exec runs a single command line and prints its outcome. It only returns
// an error to stop the loop.
func (a *Agent) Exec(ctx context.Context, line string) (err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			a.logger.Error("panic in command handler", "command", name, "panic", r, "stack", string(buf[:n]))
			a.respondWithError("an internal error occurred")
			err = nil
		}
	}()

	a.logCommand(name)

	switch name {
	case "help", "?":
		fmt.Fprintln(a.out, helpText)
	case "login":
		a.handleLogin(ctx, args)
	case "logout":
		a.handleLogout(ctx)
	case "register":
		a.handleRegister(ctx, args)
	case "in":
		a.handleClockIn(ctx)
	case "out":
		a.handleClockOut(ctx, args)
	case "break":
		a.handleBreak(ctx, args)
	case "resume":
		a.handleResume(ctx)
	case "status":
		a.handleStatus()
	case "online":
		a.handleOnline()
	case "quit", "exit":
		return errQuit
	default:
		a.respondWithError(fmt.Sprintf("unknown command %q, type 'help'", name))
	}
	return nil
}

func (a *Agent) logCommand(name string) {
	a.logger.Debug("command received", "command", name, "employee", a.session.EmployeeID())
}

func (a *Agent) respondWithError(msg string) {
	fmt.Fprintf(a.out, "error: %s\n", msg)
}

func (a *Agent) respondWithSuccess(msg string) {
	fmt.Fprintln(a.out, msg)
}

// userMessage maps known errors to short messages and logs the rest.
func (a *Agent) userMessage(action string, err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidPINFormat):
		return "PIN must be 4 digits, or @ followed by 5 digits for admins"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "unknown PIN"
	case errors.Is(err, auth.ErrNotVerified):
		return "this admin account has not been verified yet"
	case errors.Is(err, auth.ErrRegistrationsClosed):
		return "registrations are currently closed"
	case errors.Is(err, auth.ErrMissingName):
		return "first and last name are required"
	case errors.Is(err, ErrNotLoggedIn), errors.Is(err, shift.ErrNotAuthenticated):
		return "log in first"
	case errors.Is(err, shift.ErrNoShift):
		return "no current shift"
	case errors.Is(err, shift.ErrInvalidTransition):
		return err.Error()
	}
	a.logger.Error("command failed", "action", action, "error", err)
	return fmt.Sprintf("could not %s, try again", action)
}

func (a *Agent) handleLogin(ctx context.Context, args []string) {
	if len(args) != 1 {
		a.respondWithError("usage: login <pin>")
		return
	}
	employee, err := a.Login(ctx, args[0])
	if err != nil {
		a.respondWithError(a.userMessage("log in", err))
		return
	}
	a.respondWithSuccess(fmt.Sprintf("welcome, %s", employee.FullName()))
	a.handleStatus()
}

func (a *Agent) handleLogout(ctx context.Context) {
	if err := a.Logout(ctx); err != nil {
		a.respondWithError(a.userMessage("log out", err))
		return
	}
	a.respondWithSuccess("logged out")
}

func (a *Agent) handleRegister(ctx context.Context, args []string) {
	if len(args) < 4 {
		a.respondWithError("usage: register <first> <last> <pin> <code> [email]")
		return
	}
	reg := models.Registration{
		FirstName:  args[0],
		LastName:   args[1],
		PIN:        args[2],
		InviteCode: args[3],
	}
	if len(args) > 4 {
		reg.Email = args[4]
	}

	registered, err := a.Register(ctx, reg)
	if err != nil {
		a.respondWithError(a.userMessage("register", err))
		return
	}
	msg := fmt.Sprintf("registered %s", registered.FullName())
	if registered.IsAdmin && !registered.Verified {
		msg += ", waiting for verification"
	}
	a.respondWithSuccess(msg)
}

func (a *Agent) handleClockIn(ctx context.Context) {
	if err := a.ClockIn(ctx); err != nil {
		a.respondWithError(a.userMessage("clock in", err))
		return
	}
	a.respondWithSuccess("clocked in")
	a.handleStatus()
}

func (a *Agent) handleClockOut(ctx context.Context, args []string) {
	if err := a.ClockOut(ctx, strings.Join(args, " ")); err != nil {
		a.respondWithError(a.userMessage("clock out", err))
		return
	}
	a.respondWithSuccess("clocked out")
}

func (a *Agent) handleBreak(ctx context.Context, args []string) {
	reason := strings.Join(args, " ")
	if reason == "" {
		reason = "break"
	}
	if err := a.StartBreak(ctx, reason); err != nil {
		a.respondWithError(a.userMessage("start the break", err))
		return
	}
	a.respondWithSuccess("break started")
}

func (a *Agent) handleResume(ctx context.Context) {
	if err := a.EndBreak(ctx); err != nil {
		a.respondWithError(a.userMessage("end the break", err))
		return
	}
	a.respondWithSuccess("back to work")
}

func (a *Agent) handleStatus() {
	employee := a.session.Employee()
	if employee == nil {
		a.respondWithSuccess("not logged in")
		return
	}

	st := a.shifts.State()
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", employee.FullName(), st.Status)
	if !st.StartedAt.IsZero() && st.Status != models.StatusIdle {
		fmt.Fprintf(&b, " for %s", formatDuration(time.Since(st.StartedAt)))
	}
	if st.Status != models.StatusIdle && st.ShiftID == uuid.Nil {
		b.WriteString(" (shift not identified yet)")
	}
	if loc := st.LastLocation; loc != nil {
		fmt.Fprintf(&b, "\nlast location: %.6f, %.6f (±%.0f m)", loc.Latitude, loc.Longitude, loc.Accuracy)
	}
	if remaining := a.IdleRemaining(); remaining > 0 {
		fmt.Fprintf(&b, "\nauto logout in %ds", remaining)
	}
	a.respondWithSuccess(b.String())
}

func (a *Agent) handleOnline() {
	ids := a.Online()
	if len(ids) == 0 {
		a.respondWithSuccess("nobody online")
		return
	}
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, id.String())
	}
	a.respondWithSuccess(fmt.Sprintf("%d online:\n%s", len(ids), strings.Join(lines, "\n")))
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
