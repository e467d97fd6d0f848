package utils

import "testing"

func TestSplitExecutable(t *testing.T) {
	cases := []struct {
		in   string
		exe  string
		args string
		ok   bool
	}{
		{`"C:\Program Files\Contoso\uninst.exe" /S`, `C:\Program Files\Contoso\uninst.exe`, `/S`, true},
		{`"C:\Program Files\Contoso\uninst.exe"`, `C:\Program Files\Contoso\uninst.exe`, ``, true},
		{`C:\Program Files\Contoso\unins000.exe /SILENT`, `C:\Program Files\Contoso\unins000.exe`, `/SILENT`, true},
		{`C:\Tools\app.executor\remove.exe --all`, `C:\Tools\app.executor\remove.exe`, `--all`, true},
		{`MsiExec.exe /X{11111111-2222-3333-4444-555555555555}`, `MsiExec.exe`, `/X{11111111-2222-3333-4444-555555555555}`, true},
		{`"C:\Program Files\Contoso\uninst.exe /S`, `C:\Program Files\Contoso\uninst.exe /S`, ``, true},
		{`rundll32 advpack.dll,LaunchINFSection foo.inf`, ``, ``, false},
		{`   `, ``, ``, false},
		{`""`, ``, ``, false},
	}
	for _, tc := range cases {
		exe, args, ok := SplitExecutable(tc.in)
		if exe != tc.exe || args != tc.args || ok != tc.ok {
			t.Fatalf("SplitExecutable(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.in, exe, args, ok, tc.exe, tc.args, tc.ok)
		}
	}
}
