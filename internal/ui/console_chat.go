package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}

	reader := bufio.NewReader(in)
	sess := NewSession(opts)

	fmt.Fprintf(out, "进入 PaperAgent 对话模式（%s）。输入 /help 查看命令，exit/quit 退出。\n", sess.Opts.Mode)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("读取输入失败: %w", err)
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				fmt.Fprintln(out)
				return nil
			}
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		if reply, ok := sess.Command(line); ok {
			fmt.Fprintln(out, reply)
		} else {
			answer, err := sess.Ask(ctx, backend, line)
			switch {
			case err == nil:
				fmt.Fprintf(out, "助手: %s\n", answer)
			case ctx.Err() != nil:
				fmt.Fprintln(out, "已退出。")
				return nil
			default:
				// 单次失败不结束对话
				fmt.Fprintf(out, "助手: 发生错误：%v\n", err)
			}
		}
		fmt.Fprintln(out)

		if eof {
			return nil
		}
	}
}
