package mtproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
)

// TerminalAuth запрашивает телефон, код и пароль 2FA в терминале.
type TerminalAuth struct {
	phone  string
	in     *bufio.Reader
	out    io.Writer
	stdin  *os.File
	hidden bool
}

var _ auth.UserAuthenticator = (*TerminalAuth)(nil)

// NewTerminalAuth создаёт аутентификатор. Если phone пуст, он будет запрошен.
func NewTerminalAuth(phone string, in io.Reader, out io.Writer) *TerminalAuth {
	a := &TerminalAuth{phone: strings.TrimSpace(phone), in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.stdin = f
		a.hidden = true
	}
	return a
}

// Phone возвращает номер телефона.
func (a *TerminalAuth) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	return a.prompt(ctx, "Please enter your phone: ", false)
}

// Password запрашивает пароль двухфакторной авторизации.
func (a *TerminalAuth) Password(ctx context.Context) (string, error) {
	return a.prompt(ctx, "Please enter your password: ", a.hidden)
}

// Code запрашивает код подтверждения.
func (a *TerminalAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.prompt(ctx, "Please enter the code you received: ", false)
}

// AcceptTermsOfService вызывается только при регистрации нового аккаунта.
func (a *TerminalAuth) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	return &auth.SignUpRequired{TermsOfService: tos}
}

// SignUp не поддерживается: выгрузка работает только с существующим аккаунтом.
func (a *TerminalAuth) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported, register the account in an official client first")
}

func (a *TerminalAuth) prompt(ctx context.Context, label string, hidden bool) (string, error) {
	if _, err := fmt.Fprint(a.out, label); err != nil {
		return "", err
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		if hidden {
			raw, err := term.ReadPassword(int(a.stdin.Fd()))
			_, _ = fmt.Fprintln(a.out)
			ch <- result{line: string(raw), err: err}
			return
		}
		line, err := a.in.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		ch <- result{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("read input: %w", res.err)
		}
		return strings.TrimSpace(res.line), nil
	}
}
