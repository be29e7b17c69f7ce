package sandbox

// harness 包装用户代码：强制 Agg 后端，执行后保存所有打开的图，
// 用户代码异常时打印 traceback 并以非零码退出。
const harness = `import os, sys, traceback

_here = os.path.dirname(os.path.abspath(__file__))
_out = os.environ.get("PAPERAGENT_OUT", os.path.join(_here, "out"))

try:
    import matplotlib
    matplotlib.use("Agg")
except Exception:
    matplotlib = None

_failed = False
try:
    with open(os.path.join(_here, "user_code.py")) as _f:
        _src = _f.read()
    exec(compile(_src, "user_code", "exec"), {"__name__": "__main__"})
except SystemExit:
    pass
except Exception:
    traceback.print_exc()
    _failed = True

if matplotlib is not None:
    try:
        import matplotlib.pyplot as _plt
        for _i, _num in enumerate(_plt.get_fignums()):
            _plt.figure(_num).savefig(os.path.join(_out, "figure_%03d.png" % _i), bbox_inches="tight")
        _plt.close("all")
    except Exception:
        traceback.print_exc()

sys.exit(1 if _failed else 0)
`
