package hash

import (
	"testing"

	"src.sel.sh/pkg/tt"
)

func TestDJB(t *testing.T) {
	tt.Test(t, tt.Fn("DJB", DJB), tt.Table{
		tt.Args().Rets(DJBInit),
		tt.Args(uint32(1)).Rets(DJBInit*33 + 1),
	})
}

func TestInts(t *testing.T) {
	if Ints([]int{1, 2}) == Ints([]int{2, 1}) {
		t.Errorf("Ints is insensitive to order")
	}
	if Ints(nil) != Ints([]int{}) {
		t.Errorf("Ints(nil) != Ints([]int{})")
	}
	if Ints([]int{0}) == Ints(nil) {
		t.Errorf("Ints ignores length")
	}
}

func TestString(t *testing.T) {
	if String("res_com") != String("res_com") {
		t.Errorf("String is not deterministic")
	}
	if String("res_com") == String("res_cog") {
		t.Errorf("String collides on res_com/res_cog")
	}
}
