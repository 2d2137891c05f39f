package atlas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lesionmap/internal/models"
	"lesionmap/pkg/nii"
)

// testLabels builds a 4x4x4 label volume: label 1 fills the z=0 plane,
// label 2 fills z=1, everything else is 0.
func testLabels() *nii.Labels {
	g := models.Grid{Nx: 4, Ny: 4, Nz: 4}
	g.VoxelDims = [3]float64{1, 1, 1}
	for i := 0; i < 3; i++ {
		g.Affine[i][i] = 1
	}
	g.Affine[3][3] = 1

	lab := &nii.Labels{Grid: g, Data: make([]int32, g.NumVoxels())}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			lab.Data[g.Index(x, y, 0)] = 1
			lab.Data[g.Index(x, y, 1)] = 2
		}
	}
	return lab
}

func testTable() []LabelEntry {
	return []LabelEntry{
		{Label: 0, Name: "Background"},
		{Label: 1, Name: "brainstem"},
		{Label: 2, Name: "hypothalamus"},
		{Label: 3, Name: "empty_region"},
	}
}

func TestRegistryQueries(t *testing.T) {
	reg, err := NewRegistry(testLabels(), testTable())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	t.Run("region names keep table order", func(t *testing.T) {
		names := reg.RegionNames()
		want := []string{"Background", "brainstem", "hypothalamus", "empty_region"}
		if len(names) != len(want) {
			t.Fatalf("got %d names, want %d", len(names), len(want))
		}
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
			}
		}
	})

	t.Run("region size", func(t *testing.T) {
		size, err := reg.RegionSize("brainstem")
		if err != nil {
			t.Fatalf("RegionSize failed: %v", err)
		}
		if size != 16 {
			t.Errorf("brainstem size = %d, want 16", size)
		}
	})

	t.Run("empty region has size zero", func(t *testing.T) {
		size, err := reg.RegionSize("empty_region")
		if err != nil {
			t.Fatalf("RegionSize failed: %v", err)
		}
		if size != 0 {
			t.Errorf("empty_region size = %d, want 0", size)
		}
	})

	t.Run("membership matches labels", func(t *testing.T) {
		membership, err := reg.Membership("hypothalamus")
		if err != nil {
			t.Fatalf("Membership failed: %v", err)
		}
		g := reg.Grid()
		if !membership[g.Index(2, 2, 1)] {
			t.Error("voxel (2,2,1) should be in hypothalamus")
		}
		if membership[g.Index(2, 2, 0)] {
			t.Error("voxel (2,2,0) should not be in hypothalamus")
		}
	})

	t.Run("unknown region", func(t *testing.T) {
		_, err := reg.Membership("cerebellum")
		var unknown *UnknownRegionError
		if !errors.As(err, &unknown) {
			t.Fatalf("Membership = %v, want UnknownRegionError", err)
		}
		if unknown.Region != "cerebellum" {
			t.Errorf("error names region %q, want cerebellum", unknown.Region)
		}
	})
}

func TestRegistryHierarchy(t *testing.T) {
	table := []LabelEntry{
		{Label: 1, Name: "brainstem"},
		{Label: 2, Name: "midbrain", Parent: "brainstem"},
	}
	// Relabel the z=1 plane as midbrain under a brainstem root.
	reg, err := NewRegistry(testLabels(), table)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	// The parent structure covers its own voxels plus its children's.
	size, err := reg.RegionSize("brainstem")
	if err != nil {
		t.Fatalf("RegionSize failed: %v", err)
	}
	if size != 32 {
		t.Errorf("brainstem size with child = %d, want 32", size)
	}

	children, err := reg.Children("brainstem")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(children) != 1 || children[0] != "midbrain" {
		t.Errorf("Children = %v, want [midbrain]", children)
	}

	parent, err := reg.Parent("midbrain")
	if err != nil {
		t.Fatalf("Parent failed: %v", err)
	}
	if parent != "brainstem" {
		t.Errorf("Parent = %q, want brainstem", parent)
	}
}

func TestRegistryRejectsCycles(t *testing.T) {
	table := []LabelEntry{
		{Label: 1, Name: "a", Parent: "b"},
		{Label: 2, Name: "b", Parent: "a"},
	}
	if _, err := NewRegistry(testLabels(), table); err == nil {
		t.Fatal("cyclic hierarchy accepted")
	}
}

func TestRegistryRejectsUnknownParent(t *testing.T) {
	table := []LabelEntry{
		{Label: 1, Name: "a", Parent: "missing"},
	}
	if _, err := NewRegistry(testLabels(), table); err == nil {
		t.Fatal("unknown parent accepted")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	table := []LabelEntry{
		{Label: 1, Name: "a"},
		{Label: 2, Name: "a"},
	}
	if _, err := NewRegistry(testLabels(), table); err == nil {
		t.Fatal("duplicate region name accepted")
	}
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"*.*.*.*.", "Background"},
		{"Left Cerebellum*.Gray Matter", "Left CerebellumGray Matter"},
		{"*.Anterior Lobe", "Anterior Lobe"},
		{"plain", "plain"},
		{"  padded  ", "padded"},
	}
	for _, tc := range tests {
		if got := CleanLabel(tc.in); got != tc.want {
			t.Errorf("CleanLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBrainstemTable(t *testing.T) {
	table := BrainstemTable()
	if len(table) != 24 {
		t.Fatalf("table has %d entries, want 24", len(table))
	}
	if table[0].Name != "Not_in_Atlas" || table[0].Label != 0 {
		t.Errorf("entry 0 = %+v, want Not_in_Atlas/0", table[0])
	}
	if table[23].Name != "STTR_Atlas" || table[23].Label != 23 {
		t.Errorf("entry 23 = %+v, want STTR_Atlas/23", table[23])
	}
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labels.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp CSV: %v", err)
	}
	return path
}

func TestLoadTalairachTable(t *testing.T) {
	path := writeTempCSV(t, "\"Index\",\"Description\"\n0,\"Unknown/Background\"\n1,\"Left Cerebellum\"\n")

	table, err := LoadTalairachTable(path)
	if err != nil {
		t.Fatalf("LoadTalairachTable failed: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("got %d entries, want 2", len(table))
	}
	if table[1].Label != 1 || table[1].Name != "Left Cerebellum" {
		t.Errorf("entry 1 = %+v", table[1])
	}
}

func TestLoadNeudorferTable(t *testing.T) {
	path := writeTempCSV(t,
		"Label,Hemisphere,Abbreviation,Name\n1,Left,STN,Subthalamic Nucleus\n")

	table, err := LoadNeudorferTable(path)
	if err != nil {
		t.Fatalf("LoadNeudorferTable failed: %v", err)
	}
	if len(table) != 1 {
		t.Fatalf("got %d entries, want 1", len(table))
	}
	if table[0].Name != "Left_STN_Subthalamic_Nucleus" {
		t.Errorf("composed name = %q", table[0].Name)
	}
}

func TestLoadTableDispatch(t *testing.T) {
	if _, err := LoadTable("brainstem", ""); err != nil {
		t.Errorf("brainstem dispatch failed: %v", err)
	}
	if _, err := LoadTable("bogus", ""); err == nil {
		t.Error("unknown format accepted")
	}
}
